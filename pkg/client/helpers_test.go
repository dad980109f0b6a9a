package client

import (
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/require"
)

func testAccount() sip.Uri {
	return sip.Uri{Scheme: "sip", User: "alice", Host: "example.com"}
}

func testLocal() sip.Uri {
	return sip.Uri{Scheme: "sip", User: "alice", Host: "192.168.1.10", Port: 5060}
}

func headerNames(hs []sip.Header) []string {
	names := make([]string, 0, len(hs))
	for _, h := range hs {
		names = append(names, h.Name())
	}
	return names
}

// challengeResponse создает 401/407 с заголовком вызова
func challengeResponse(code int, header, value string) *sip.Response {
	res := sip.NewResponse(code, "Unauthorized")
	if header != "" {
		res.AppendHeader(sip.NewHeader(header, value))
	}
	return res
}

func mustParseURI(t *testing.T, s string) sip.Uri {
	t.Helper()
	u, err := ParseURI(s)
	require.NoError(t, err)
	return u
}
