package client

import (
	"github.com/emiago/sipgo/sip"
	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"
)

// ContentTypeSDP тип тела INVITE с предложением сессии
const ContentTypeSDP = "application/sdp"

// dialogIndex ключ хранения: удаленный тег становится известен позже
type dialogIndex struct {
	callID   string
	localTag string
}

// InviteHelper ведет INVITE диалоги аккаунта: исходящие (UAC) и входящие (UAS).
// Сообщения только строятся и разбираются, отправка остается вызывающему.
//
// Не потокобезопасен.
type InviteHelper struct {
	accountURI sip.Uri
	localURI   sip.Uri

	dialogs map[dialogIndex]*CallDialog
}

// NewInviteHelper создает InviteHelper. account используется в From,
// local в Contact.
func NewInviteHelper(account, local sip.Uri) *InviteHelper {
	return &InviteHelper{
		accountURI: identityURI(account),
		localURI:   *local.Clone(),
		dialogs:    make(map[dialogIndex]*CallDialog),
	}
}

// Invite создает INVITE к target и регистрирует исходящий диалог.
// offer может быть nil, тогда тело пустое.
func (h *InviteHelper) Invite(target sip.Uri, via *sip.ViaHeader, cfg *HeaderWriteConfig, offer *sdp.SessionDescription) (*sip.Request, *CallDialog, error) {
	if via == nil {
		return nil, nil, buildError("invite", errors.New("отсутствует заголовок Via"))
	}

	var body []byte
	if offer != nil {
		b, err := offer.Marshal()
		if err != nil {
			return nil, nil, serializationError("invite", errors.Wrap(err, "sdp marshal"))
		}
		body = b
	}

	d := newCallDialog(RoleUAC)
	d.callID = newCallID(h.localURI.Host)
	d.localTag = newTag()
	d.localURI = h.accountURI
	d.remoteURI = *target.Clone()
	d.remoteTarget = *target.Clone()
	d.localSeq = DefaultInitialSeq

	req := sip.NewRequest(sip.INVITE, *target.Clone())
	req.AppendHeader(via.Clone())
	appendMaxForwards(req)
	req.AppendHeader(d.fromHeader())
	req.AppendHeader(d.toHeader())

	callID := sip.CallIDHeader(d.callID)
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: d.localSeq, MethodName: sip.INVITE})
	req.AppendHeader(NewContactHeader(h.localURI, ""))

	if body != nil {
		ct := sip.ContentTypeHeader(ContentTypeSDP)
		req.AppendHeader(&ct)
	}
	cfg.WriteHeaders(req)
	appendContentLength(req, len(body))
	req.SetBody(body)

	if err := validateRequest(req); err != nil {
		return nil, nil, buildError("invite", err)
	}

	d.invite = req
	h.dialogs[dialogIndex{callID: d.callID, localTag: d.localTag}] = d
	return req, d, nil
}

// HandleResponse применяет ответ на INVITE или BYE к исходящему диалогу.
// Диалог ищется по Call-ID и тегу From.
func (h *InviteHelper) HandleResponse(res *sip.Response) (*CallDialog, error) {
	if res == nil {
		return nil, responseError("invite response", errors.New("nil response"))
	}
	callID, from, cseq := res.CallID(), res.From(), res.CSeq()
	if callID == nil || from == nil || cseq == nil {
		return nil, responseError("invite response", errors.New("нет Call-ID, From или CSeq"))
	}
	fromTag, _ := from.Params.Get("tag")

	d, ok := h.dialogs[dialogIndex{callID: callID.Value(), localTag: fromTag}]
	if !ok {
		return nil, responseError("invite response", ErrDialogNotFound)
	}

	switch cseq.MethodName {
	case sip.INVITE:
		if cseq.SeqNo != d.invite.CSeq().SeqNo {
			return nil, responseError("invite response", errors.Errorf("CSeq %d не совпадает с INVITE", cseq.SeqNo))
		}
		h.applyInviteResponse(d, res)
	case sip.BYE:
		if res.StatusCode >= 200 && d.State() == DialogTerminating {
			d.fire(eventTerminated)
		}
	case sip.CANCEL:
		// 200 на CANCEL состояние не меняет, INVITE завершится ответом 487
	default:
		return nil, responseError("invite response", errors.Errorf("неожиданный метод CSeq %s", cseq.MethodName))
	}
	return d, nil
}

func (h *InviteHelper) applyInviteResponse(d *CallDialog, res *sip.Response) {
	code := res.StatusCode
	switch {
	case code < 200:
		if code == 100 {
			return
		}
		if !h.learnRemote(d, res, false) {
			return
		}
		d.fire(eventEarly)
	case code < 300:
		// тег 2xx определяет подтвержденный диалог, даже если 1xx пришел от другой ветви
		h.learnRemote(d, res, true)
		d.remoteBody = res.Body()
		d.fire(eventConfirm)
	default:
		d.fire(eventTerminated)
	}
}

// learnRemote запоминает тег и Contact удаленной стороны. false, если в To нет тега.
// Без override сохраняется первый полученный тег.
func (h *InviteHelper) learnRemote(d *CallDialog, res *sip.Response, override bool) bool {
	to := res.To()
	if to == nil {
		return false
	}
	tag, ok := to.Params.Get("tag")
	if !ok || tag == "" {
		return false
	}
	if d.remoteTag != "" && d.remoteTag != tag && !override {
		return true
	}
	d.remoteTag = tag
	if contact := res.Contact(); contact != nil {
		d.remoteTarget = *contact.Address.Clone()
	}
	return true
}

// Cancel создает CANCEL для INVITE, на который еще нет финального ответа.
// Via (с тем же branch), From, To и Call-ID копируются из INVITE.
func (h *InviteHelper) Cancel(d *CallDialog) (*sip.Request, error) {
	if d == nil || d.role != RoleUAC {
		return nil, buildError("cancel", ErrInvalidDialogState)
	}
	if !d.isPending() {
		return nil, buildError("cancel", errors.Wrapf(ErrInvalidDialogState, "state %s", d.State()))
	}

	inv := d.invite
	req := sip.NewRequest(sip.CANCEL, *inv.Recipient.Clone())
	if via := inv.Via(); via != nil {
		req.AppendHeader(via.Clone())
	}
	appendMaxForwards(req)
	if from := inv.From(); from != nil {
		req.AppendHeader(sip.HeaderClone(from))
	}
	if to := inv.To(); to != nil {
		req.AppendHeader(sip.HeaderClone(to))
	}
	callID := sip.CallIDHeader(d.callID)
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: inv.CSeq().SeqNo, MethodName: sip.CANCEL})
	appendContentLength(req, 0)

	if err := validateRequest(req); err != nil {
		return nil, buildError("cancel", err)
	}
	return req, nil
}

// Ack создает ACK на 2xx ответ. CSeq номер берется из INVITE.
func (h *InviteHelper) Ack(d *CallDialog, via *sip.ViaHeader) (*sip.Request, error) {
	if d == nil || d.role != RoleUAC || d.State() != DialogConfirmed {
		return nil, buildError("ack", ErrInvalidDialogState)
	}
	req, err := h.inDialogRequest(d, sip.ACK, d.invite.CSeq().SeqNo, via, nil)
	if err != nil {
		return nil, buildError("ack", err)
	}
	return req, nil
}

// Bye создает BYE внутри подтвержденного диалога и переводит его в terminating
func (h *InviteHelper) Bye(d *CallDialog, via *sip.ViaHeader, cfg *HeaderWriteConfig) (*sip.Request, error) {
	if d == nil || d.State() != DialogConfirmed {
		return nil, buildError("bye", ErrInvalidDialogState)
	}
	req, err := h.inDialogRequest(d, sip.BYE, d.localSeq+1, via, cfg)
	if err != nil {
		return nil, buildError("bye", err)
	}
	d.localSeq++
	d.fire(eventTerminate)
	return req, nil
}

func (h *InviteHelper) inDialogRequest(d *CallDialog, method sip.RequestMethod, seq uint32, via *sip.ViaHeader, cfg *HeaderWriteConfig) (*sip.Request, error) {
	if via == nil {
		via = viaFromURI(h.localURI)
	} else {
		via = via.Clone()
	}

	req := sip.NewRequest(method, *d.remoteTarget.Clone())
	req.AppendHeader(via)
	appendMaxForwards(req)
	req.AppendHeader(d.fromHeader())
	req.AppendHeader(d.toHeader())
	callID := sip.CallIDHeader(d.callID)
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: seq, MethodName: method})
	cfg.WriteHeaders(req)
	appendContentLength(req, 0)

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return req, nil
}

// Receive регистрирует входящий INVITE как UAS диалог с новым локальным тегом.
// Повтор INVITE (тот же Call-ID, тег From и CSeq) возвращает уже созданный диалог.
func (h *InviteHelper) Receive(req *sip.Request) (*CallDialog, error) {
	if req == nil || req.Method != sip.INVITE {
		return nil, buildError("receive", errors.New("запрос не является INVITE"))
	}
	callID, from, to, cseq := req.CallID(), req.From(), req.To(), req.CSeq()
	if callID == nil || from == nil || to == nil || cseq == nil {
		return nil, buildError("receive", errors.New("нет Call-ID, From, To или CSeq"))
	}
	fromTag, ok := from.Params.Get("tag")
	if !ok || fromTag == "" {
		return nil, buildError("receive", errors.New("у From нет тега"))
	}
	for _, d := range h.dialogs {
		if d.role == RoleUAS && d.callID == callID.Value() && d.remoteTag == fromTag &&
			d.invite.CSeq().SeqNo == cseq.SeqNo {
			return d, nil
		}
	}

	d := newCallDialog(RoleUAS)
	d.callID = callID.Value()
	d.localTag = newTag()
	d.remoteTag = fromTag
	d.localURI = *to.Address.Clone()
	d.remoteURI = *from.Address.Clone()
	d.remoteTarget = *from.Address.Clone()
	if contact := req.Contact(); contact != nil {
		d.remoteTarget = *contact.Address.Clone()
	}
	d.remoteSeq = cseq.SeqNo
	d.localSeq = DefaultInitialSeq - 1
	d.invite = req
	d.remoteBody = req.Body()

	h.dialogs[dialogIndex{callID: d.callID, localTag: d.localTag}] = d
	return d, nil
}

// Respond создает ответ на входящий INVITE. Для кодов выше 100 в To
// добавляется локальный тег. answer может быть nil.
func (h *InviteHelper) Respond(d *CallDialog, code int, reason string, cfg *HeaderWriteConfig, answer *sdp.SessionDescription) (*sip.Response, error) {
	if d == nil || d.role != RoleUAS || !d.isPending() {
		return nil, buildError("respond", ErrInvalidDialogState)
	}
	if code < 100 || code > 699 {
		return nil, buildError("respond", errors.Errorf("некорректный код ответа %d", code))
	}

	var body []byte
	if answer != nil {
		b, err := answer.Marshal()
		if err != nil {
			return nil, serializationError("respond", errors.Wrap(err, "sdp marshal"))
		}
		body = b
	}

	res := sip.NewResponse(code, reason)
	for _, hdr := range filterTransactionHeaders(d.invite.Headers()) {
		if to, ok := hdr.(*sip.ToHeader); ok && code > 100 {
			if to.Params == nil {
				to.Params = sip.NewParams()
			}
			if _, has := to.Params.Get("tag"); !has {
				to.Params = to.Params.Add("tag", d.localTag)
			}
		}
		res.AppendHeader(hdr)
	}
	if code > 100 && code < 300 {
		res.AppendHeader(NewContactHeader(h.localURI, ""))
	}
	if body != nil {
		ct := sip.ContentTypeHeader(ContentTypeSDP)
		res.AppendHeader(&ct)
	}
	cfg.WriteHeaders(res)
	appendContentLength(res, len(body))
	res.SetBody(body)

	if err := validateResponse(res); err != nil {
		return nil, buildError("respond", err)
	}

	switch {
	case code == 100:
	case code < 200:
		d.fire(eventEarly)
	case code < 300:
		d.fire(eventConfirm)
	default:
		d.fire(eventTerminated)
	}
	return res, nil
}

// RemoteOffer разбирает SDP удаленной стороны: из INVITE для UAS, из 2xx для UAC
func (h *InviteHelper) RemoteOffer(d *CallDialog) (*sdp.SessionDescription, error) {
	if d == nil || len(d.remoteBody) == 0 {
		return nil, serializationError("remote offer", errors.New("нет тела SDP"))
	}
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(d.remoteBody); err != nil {
		return nil, serializationError("remote offer", errors.Wrap(err, "sdp unmarshal"))
	}
	return &sd, nil
}

// HandleCancel завершает входящий диалог, INVITE которого отменен.
// Для подтвержденного диалога CANCEL не действует, диалог возвращается без изменений.
func (h *InviteHelper) HandleCancel(req *sip.Request) (*CallDialog, error) {
	if req == nil || req.Method != sip.CANCEL {
		return nil, responseError("handle cancel", errors.New("запрос не является CANCEL"))
	}
	d, err := h.findByRemote(req)
	if err != nil {
		return nil, responseError("handle cancel", err)
	}
	if d.isPending() {
		d.fire(eventTerminated)
	}
	return d, nil
}

// HandleBye завершает диалог по входящему BYE и возвращает 200 OK
func (h *InviteHelper) HandleBye(req *sip.Request, cfg *HeaderWriteConfig) (*CallDialog, *sip.Response, error) {
	if req == nil || req.Method != sip.BYE {
		return nil, nil, responseError("handle bye", errors.New("запрос не является BYE"))
	}
	callID, from, to := req.CallID(), req.From(), req.To()
	if callID == nil || from == nil || to == nil {
		return nil, nil, responseError("handle bye", errors.New("нет Call-ID, From или To"))
	}
	localTag, _ := to.Params.Get("tag")
	remoteTag, _ := from.Params.Get("tag")

	d := h.Find(callID.Value(), localTag, remoteTag)
	if d == nil {
		return nil, nil, responseError("handle bye", ErrDialogNotFound)
	}
	s := d.State()
	if s != DialogConfirmed && s != DialogTerminating {
		return nil, nil, responseError("handle bye", errors.Wrapf(ErrInvalidDialogState, "state %s", s))
	}
	if cseq := req.CSeq(); cseq != nil {
		d.remoteSeq = cseq.SeqNo
	}

	res := sip.NewResponse(sip.StatusOK, "OK")
	for _, hdr := range filterTransactionHeaders(req.Headers()) {
		res.AppendHeader(hdr)
	}
	cfg.WriteHeaders(res)
	appendContentLength(res, 0)
	if err := validateResponse(res); err != nil {
		return nil, nil, buildError("handle bye", err)
	}

	d.fire(eventTerminated)
	return d, res, nil
}

// findByRemote ищет входящий диалог по Call-ID и тегу From запроса
func (h *InviteHelper) findByRemote(req *sip.Request) (*CallDialog, error) {
	callID, from := req.CallID(), req.From()
	if callID == nil || from == nil {
		return nil, errors.Wrap(ErrDialogNotFound, "нет Call-ID или From")
	}
	remoteTag, _ := from.Params.Get("tag")
	for _, d := range h.dialogs {
		if d.role == RoleUAS && d.callID == callID.Value() && d.remoteTag == remoteTag {
			return d, nil
		}
	}
	return nil, ErrDialogNotFound
}

// Find возвращает диалог по ключу. Пустой remoteTag совпадает с диалогом,
// удаленный тег которого еще неизвестен.
func (h *InviteHelper) Find(callID, localTag, remoteTag string) *CallDialog {
	d, ok := h.dialogs[dialogIndex{callID: callID, localTag: localTag}]
	if !ok {
		return nil
	}
	if remoteTag != "" && d.remoteTag != "" && d.remoteTag != remoteTag {
		return nil
	}
	return d
}

// Dialogs возвращает все известные диалоги
func (h *InviteHelper) Dialogs() []*CallDialog {
	out := make([]*CallDialog, 0, len(h.dialogs))
	for _, d := range h.dialogs {
		out = append(out, d)
	}
	return out
}

// Forget удаляет диалог из InviteHelper
func (h *InviteHelper) Forget(d *CallDialog) {
	if d == nil {
		return
	}
	delete(h.dialogs, dialogIndex{callID: d.callID, localTag: d.localTag})
}
