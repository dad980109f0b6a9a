package client

import (
	"github.com/emiago/sipgo/sip"
	"github.com/pkg/errors"
)

// DefaultContentType тип тела MESSAGE по умолчанию
const DefaultContentType = "text/plain"

// MessageWriter создает MESSAGE запросы вне диалога от имени аккаунта.
// Нумерация CSeq не зависит от RegistrationManager.
//
// Не потокобезопасен.
type MessageWriter struct {
	accountURI  sip.Uri
	contentType string
	seq         uint32
	callID      sip.CallIDHeader
}

// MessageOption опция MessageWriter
type MessageOption func(*MessageWriter)

// WithContentType задает Content-Type исходящих сообщений
func WithContentType(contentType string) MessageOption {
	return func(w *MessageWriter) {
		w.contentType = contentType
	}
}

// WithMessageInitialSeq задает первый CSeq сообщений.
// Значение больше MaxSeq приводит к ErrBuild при создании запроса.
func WithMessageInitialSeq(seq uint32) MessageOption {
	return func(w *MessageWriter) {
		w.seq = seq
	}
}

// NewMessageWriter создает MessageWriter для аккаунта
func NewMessageWriter(account sip.Uri, opts ...MessageOption) *MessageWriter {
	w := &MessageWriter{
		accountURI:  identityURI(account),
		contentType: DefaultContentType,
		seq:         DefaultInitialSeq,
		callID:      sip.CallIDHeader(newCallID(account.Host)),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Seq возвращает CSeq, который получит следующий MESSAGE
func (w *MessageWriter) Seq() uint32 { return w.seq }

// CallID возвращает Call-ID сообщений этого аккаунта
func (w *MessageWriter) CallID() string { return string(w.callID) }

// WriteMessage создает MESSAGE с телом body для dest. via обычно берется
// из RegistrationManager.ViaHeader, чтобы маршрут совпадал с регистрацией.
func (w *MessageWriter) WriteMessage(body []byte, dest sip.Uri, via *sip.ViaHeader, cfg *HeaderWriteConfig) (*sip.Request, error) {
	if via == nil {
		return nil, buildError("message", errors.New("отсутствует заголовок Via"))
	}
	if err := checkSeq(w.seq); err != nil {
		return nil, buildError("message", err)
	}

	req := sip.NewRequest(sip.MESSAGE, *dest.Clone())
	req.AppendHeader(via.Clone())
	appendMaxForwards(req)

	from := NewFromHeader(w.accountURI, "")
	from.Params = from.Params.Add("tag", newTag())
	req.AppendHeader(from)
	req.AppendHeader(NewToHeader(dest, ""))

	callID := w.callID
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: w.seq, MethodName: sip.MESSAGE})

	if w.contentType != "" && len(body) > 0 {
		ct := sip.ContentTypeHeader(w.contentType)
		req.AppendHeader(&ct)
	}
	cfg.WriteHeaders(req)
	appendContentLength(req, len(body))
	req.SetBody(body)

	if err := validateRequest(req); err != nil {
		return nil, buildError("message", err)
	}

	w.seq++
	return req, nil
}

// MessageHelper оборачивает входящий MESSAGE запрос
type MessageHelper struct {
	req *sip.Request
}

// NewMessageHelper проверяет, что запрос является MESSAGE
func NewMessageHelper(req *sip.Request) (*MessageHelper, error) {
	if req == nil || req.Method != sip.MESSAGE {
		return nil, buildError("message helper", errors.New("запрос не является MESSAGE"))
	}
	return &MessageHelper{req: req}, nil
}

// Sender возвращает адрес отправителя из From
func (h *MessageHelper) Sender() (sip.Uri, bool) {
	from := h.req.From()
	if from == nil {
		return sip.Uri{}, false
	}
	return *from.Address.Clone(), true
}

// Body возвращает тело сообщения
func (h *MessageHelper) Body() []byte {
	return h.req.Body()
}

// ContentType возвращает Content-Type или DefaultContentType
func (h *MessageHelper) ContentType() string {
	if ct := h.req.GetHeader("Content-Type"); ct != nil {
		return ct.Value()
	}
	return DefaultContentType
}

// Response создает 200 OK на входящий MESSAGE. Заголовки маршрутизации
// и идентификации копируются так же, как в ответах на CANCEL.
func (h *MessageHelper) Response(cfg *HeaderWriteConfig) (*sip.Response, error) {
	res := sip.NewResponse(sip.StatusOK, "OK")
	for _, hdr := range filterTransactionHeaders(h.req.Headers()) {
		res.AppendHeader(hdr)
	}
	cfg.WriteHeaders(res)
	appendContentLength(res, 0)

	if err := validateResponse(res); err != nil {
		return nil, buildError("message response", err)
	}
	return res, nil
}
