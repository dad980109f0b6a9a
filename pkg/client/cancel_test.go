package client

import (
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headerLines(hs []sip.Header) []string {
	lines := make([]string, 0, len(hs))
	for _, h := range hs {
		lines = append(lines, h.Name()+": "+h.Value())
	}
	return lines
}

func cancelHeaders() []sip.Header {
	callID := sip.CallIDHeader("abc")
	ct := sip.ContentTypeHeader("text/plain")
	from := NewFromHeader(sip.Uri{Scheme: "sip", User: "a", Host: "example.com"}, "")
	from.Params = from.Params.Add("tag", "ftag")
	return []sip.Header{
		&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE},
		&callID,
		from,
		NewToHeader(sip.Uri{Scheme: "sip", User: "b", Host: "example.com"}, ""),
		&sip.ViaHeader{
			ProtocolName:    "SIP",
			ProtocolVersion: "2.0",
			Transport:       "UDP",
			Host:            "10.0.0.1",
			Port:            5060,
			Params:          sip.NewParams().Add("branch", "z9hG4bKabc"),
		},
		&ct,
	}
}

// TestCancelResponses проверяет состав и порядок заголовков пары ответов
func TestCancelResponses(t *testing.T) {
	headers := cancelHeaders()
	expected := append(headerLines(headers[:5]), "Content-Length: 0")

	ok, terminated, err := cancelResponses(headers)
	require.NoError(t, err)

	assert.Equal(t, 200, ok.StatusCode)
	assert.Equal(t, 487, terminated.StatusCode)

	if diff := cmp.Diff(expected, headerLines(ok.Headers())); diff != "" {
		t.Errorf("200 headers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(expected, headerLines(terminated.Headers())); diff != "" {
		t.Errorf("487 headers mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, ok.GetHeader("Content-Type"))
	assert.Nil(t, terminated.GetHeader("Content-Type"))
}

// TestCancelResponses_NoAliasing проверяет, что ответы не разделяют заголовки
// ни друг с другом, ни с исходным набором
func TestCancelResponses_NoAliasing(t *testing.T) {
	headers := cancelHeaders()
	ok, terminated, err := cancelResponses(headers)
	require.NoError(t, err)

	ok.CSeq().SeqNo = 99
	*ok.CallID() = sip.CallIDHeader("changed")
	ok.Via().Host = "changed"

	assert.Equal(t, uint32(1), terminated.CSeq().SeqNo)
	assert.Equal(t, "abc", terminated.CallID().Value())
	assert.Equal(t, "10.0.0.1", terminated.Via().Host)

	assert.Equal(t, uint32(1), headers[0].(*sip.CSeqHeader).SeqNo)
	assert.Equal(t, "abc", headers[1].Value())
}

func TestCancelResponses_Empty(t *testing.T) {
	ct := sip.ContentTypeHeader("application/sdp")
	for _, headers := range [][]sip.Header{nil, {&ct}} {
		ok, terminated, err := cancelResponses(headers)
		require.NoError(t, err)
		assert.Equal(t, []string{"Content-Length: 0"}, headerLines(ok.Headers()))
		assert.Equal(t, []string{"Content-Length: 0"}, headerLines(terminated.Headers()))
	}
}

func TestFilterTransactionHeaders_Generic(t *testing.T) {
	headers := []sip.Header{
		sip.NewHeader("v", "SIP/2.0/UDP 10.0.0.1;branch=z9hG4bK1"),
		sip.NewHeader("Subject", "hi"),
		sip.NewHeader("i", "generic-call-id"),
		sip.NewHeader("f", "<sip:a@example.com>;tag=1"),
		sip.NewHeader("t", "<sip:b@example.com>"),
		sip.NewHeader("CSeq", "1 INVITE"),
		sip.NewHeader("Max-Forwards", "70"),
	}

	filtered := filterTransactionHeaders(headers)
	assert.Equal(t, []string{"v", "i", "f", "t", "CSeq"}, headerNames(filtered))
}
