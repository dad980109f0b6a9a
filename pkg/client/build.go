package client

import (
	"strings"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// maxForwards значение Max-Forwards для всех исходящих запросов
	maxForwards = 70
	// branchMagicCookie обязательный префикс branch по RFC 3261
	branchMagicCookie = "z9hG4bK"
	tagLength         = 8
	branchLength      = 16

	// MaxSeq наибольший допустимый номер CSeq (RFC 3261: меньше 2^31)
	MaxSeq uint32 = 1<<31 - 1
)

// checkSeq проверяет, что номер CSeq не вышел за MaxSeq
func checkSeq(seq uint32) error {
	if seq > MaxSeq {
		return errors.Errorf("CSeq %d превышает %d", seq, MaxSeq)
	}
	return nil
}

// HeaderAppender принимает заголовки в конец набора. Реализуется *sip.Request и *sip.Response.
type HeaderAppender interface {
	AppendHeader(header sip.Header)
}

func newTag() string {
	return sip.RandString(tagLength)
}

func newBranch() string {
	return branchMagicCookie + sip.RandString(branchLength)
}

// newCallID генерирует Call-ID вида uuid@host
func newCallID(host string) string {
	if host == "" {
		return uuid.NewString()
	}
	return uuid.NewString() + "@" + host
}

// viaFromURI создает Via для локальной привязки
func viaFromURI(local sip.Uri) *sip.ViaHeader {
	transport := "UDP"
	if t, ok := local.UriParams.Get("transport"); ok && t != "" {
		transport = strings.ToUpper(t)
	}
	return &sip.ViaHeader{
		ProtocolName:    "SIP",
		ProtocolVersion: "2.0",
		Transport:       transport,
		Host:            local.Host,
		Port:            local.Port,
		Params:          sip.NewParams().Add("branch", newBranch()),
	}
}

// registrarURI возвращает URI регистратора: домен аккаунта без user части
func registrarURI(account sip.Uri) sip.Uri {
	return sip.Uri{
		Scheme: account.Scheme,
		Host:   account.Host,
		Port:   account.Port,
	}
}

func appendMaxForwards(m HeaderAppender) {
	mf := sip.MaxForwardsHeader(maxForwards)
	m.AppendHeader(&mf)
}

func appendContentLength(m HeaderAppender, n int) {
	cl := sip.ContentLengthHeader(n)
	m.AppendHeader(&cl)
}

// validateRequest проверяет наличие обязательных полей запроса
func validateRequest(req *sip.Request) error {
	if req.Method == "" {
		return errors.New("отсутствует метод")
	}
	if req.Recipient.Host == "" {
		return errors.Errorf("у Request-URI нет хоста (%s)", req.Method)
	}
	if req.Via() == nil {
		return errors.New("отсутствует заголовок Via")
	}
	if from := req.From(); from == nil {
		return errors.New("отсутствует заголовок From")
	} else if from.Address.Host == "" {
		return errors.New("у заголовка From нет хоста")
	}
	if to := req.To(); to == nil {
		return errors.New("отсутствует заголовок To")
	} else if to.Address.Host == "" {
		return errors.New("у заголовка To нет хоста")
	}
	if callID := req.CallID(); callID == nil || callID.Value() == "" {
		return errors.New("отсутствует заголовок Call-ID")
	}
	if cseq := req.CSeq(); cseq == nil {
		return errors.New("отсутствует заголовок CSeq")
	} else if cseq.MethodName != req.Method {
		return errors.Errorf("метод CSeq %s не совпадает с методом запроса %s", cseq.MethodName, req.Method)
	}
	if req.GetHeader("Max-Forwards") == nil {
		return errors.New("отсутствует заголовок Max-Forwards")
	}
	if cl := req.ContentLength(); cl == nil {
		return errors.New("отсутствует заголовок Content-Length")
	} else if int(*cl) != len(req.Body()) {
		return errors.Errorf("Content-Length (%d) не соответствует размеру тела (%d)", int(*cl), len(req.Body()))
	}
	return nil
}

// validateResponse проверяет ответ. Набор заголовков не проверяется:
// ответы на CANCEL строятся даже из пустого набора.
func validateResponse(res *sip.Response) error {
	if res.StatusCode < 100 || res.StatusCode > 699 {
		return errors.Errorf("некорректный код ответа %d", res.StatusCode)
	}
	if res.ContentLength() == nil {
		return errors.New("отсутствует заголовок Content-Length")
	}
	return nil
}

// cloneHeaders копирует заголовки, чтобы сообщения не разделяли их значения
func cloneHeaders(hs []sip.Header) []sip.Header {
	out := make([]sip.Header, 0, len(hs))
	for _, h := range hs {
		out = append(out, cloneHeader(h))
	}
	return out
}

// cloneHeader копирует заголовок. Для Call-ID sip.HeaderClone возвращает
// тот же указатель, поэтому значение копируется явно.
func cloneHeader(h sip.Header) sip.Header {
	if callID, ok := h.(*sip.CallIDHeader); ok {
		c := *callID
		return &c
	}
	return sip.HeaderClone(h)
}
