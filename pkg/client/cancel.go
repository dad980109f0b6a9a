package client

import (
	"strings"

	"github.com/emiago/sipgo/sip"
)

// isTransactionHeader сообщает, относится ли заголовок к набору, который
// копируется из запроса в ответ: CSeq, Call-ID, From, To, Via.
// Компактные формы имен тоже учитываются.
func isTransactionHeader(h sip.Header) bool {
	switch h.(type) {
	case *sip.CSeqHeader, *sip.CallIDHeader, *sip.FromHeader, *sip.ToHeader, *sip.ViaHeader:
		return true
	}
	switch strings.ToLower(h.Name()) {
	case "cseq", "call-id", "i", "from", "f", "to", "t", "via", "v":
		return true
	}
	return false
}

// filterTransactionHeaders оставляет заголовки транзакции в исходном порядке.
// Возвращаются копии, исходный набор не меняется.
func filterTransactionHeaders(headers []sip.Header) []sip.Header {
	out := make([]sip.Header, 0, len(headers))
	for _, h := range headers {
		if h == nil || !isTransactionHeader(h) {
			continue
		}
		out = append(out, cloneHeader(h))
	}
	return out
}

// cancelResponses создает пару ответов на CANCEL: 200 для самого CANCEL
// и 487 для отменяемого INVITE. Пустой результат фильтра допускается.
func cancelResponses(headers []sip.Header) (*sip.Response, *sip.Response, error) {
	filtered := filterTransactionHeaders(headers)

	ok := sip.NewResponse(sip.StatusOK, "OK")
	terminated := sip.NewResponse(sip.StatusRequestTerminated, "Request Terminated")

	// у каждого ответа свои копии заголовков
	for _, h := range filtered {
		ok.AppendHeader(h)
	}
	for _, h := range cloneHeaders(filtered) {
		terminated.AppendHeader(h)
	}
	appendContentLength(ok, 0)
	appendContentLength(terminated, 0)

	if err := validateResponse(ok); err != nil {
		return nil, nil, buildError("cancel response", err)
	}
	if err := validateResponse(terminated); err != nil {
		return nil, nil, buildError("cancel response", err)
	}
	return ok, terminated, nil
}
