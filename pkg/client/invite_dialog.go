package client

import (
	"context"
	"fmt"

	"github.com/emiago/sipgo/sip"
	"github.com/looplab/fsm"
)

// DialogState состояние диалога вызова
type DialogState string

func (s DialogState) String() string {
	return string(s)
}

// Состояния диалога
const (
	// DialogNone - INVITE создан или получен, ответа с тегом еще не было
	DialogNone DialogState = "none"
	// DialogEarly - ранний диалог после 1xx с To тегом
	DialogEarly DialogState = "early"
	// DialogConfirmed - подтвержденный диалог после 2xx
	DialogConfirmed DialogState = "confirmed"
	// DialogTerminating - отправлен BYE, ждем ответа
	DialogTerminating DialogState = "terminating"
	// DialogTerminated - диалог завершен
	DialogTerminated DialogState = "terminated"
)

// События FSM
const (
	eventEarly      = "early"
	eventConfirm    = "confirm"
	eventTerminate  = "terminate"
	eventTerminated = "terminated"
)

// DialogRole роль клиента в диалоге
type DialogRole int

const (
	// RoleUAC - исходящий вызов
	RoleUAC DialogRole = iota
	// RoleUAS - входящий вызов
	RoleUAS
)

func (r DialogRole) String() string {
	if r == RoleUAS {
		return "UAS"
	}
	return "UAC"
}

// DialogKey идентифицирует диалог: Call-ID, локальный и удаленный теги
type DialogKey struct {
	CallID    string
	LocalTag  string
	RemoteTag string
}

func (k DialogKey) String() string {
	return fmt.Sprintf("%s;%s;%s", k.CallID, k.LocalTag, k.RemoteTag)
}

// StateChangeHandler вызывается после перехода диалога между состояниями
type StateChangeHandler func(d *CallDialog, from, to DialogState)

// CallDialog состояние одного INVITE диалога
type CallDialog struct {
	role DialogRole

	callID    string
	localTag  string
	remoteTag string

	localURI     sip.Uri
	remoteURI    sip.Uri
	remoteTarget sip.Uri

	localSeq  uint32
	remoteSeq uint32

	// исходный INVITE: отправленный (UAC) или полученный (UAS)
	invite *sip.Request
	// тело удаленной стороны: из INVITE (UAS) или из 2xx (UAC)
	remoteBody []byte

	stateMachine  *fsm.FSM
	onStateChange StateChangeHandler
}

func newCallDialog(role DialogRole) *CallDialog {
	d := &CallDialog{role: role}
	d.stateMachine = fsm.NewFSM(
		string(DialogNone),
		fsm.Events{
			{Name: eventEarly, Src: []string{string(DialogNone)}, Dst: string(DialogEarly)},
			{Name: eventConfirm, Src: []string{string(DialogNone), string(DialogEarly)}, Dst: string(DialogConfirmed)},
			{Name: eventTerminate, Src: []string{string(DialogConfirmed)}, Dst: string(DialogTerminating)},
			{Name: eventTerminated, Src: []string{
				string(DialogNone),
				string(DialogEarly),
				string(DialogConfirmed),
				string(DialogTerminating),
			}, Dst: string(DialogTerminated)},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				if d.onStateChange != nil {
					d.onStateChange(d, DialogState(e.Src), DialogState(e.Dst))
				}
			},
		},
	)
	return d
}

// fire выполняет переход, если он допустим из текущего состояния
func (d *CallDialog) fire(event string) bool {
	if !d.stateMachine.Can(event) {
		return false
	}
	return d.stateMachine.Event(context.Background(), event) == nil
}

// Key возвращает ключ диалога
func (d *CallDialog) Key() DialogKey {
	return DialogKey{CallID: d.callID, LocalTag: d.localTag, RemoteTag: d.remoteTag}
}

// ID возвращает ключ диалога в виде строки
func (d *CallDialog) ID() string { return d.Key().String() }

// State возвращает текущее состояние
func (d *CallDialog) State() DialogState { return DialogState(d.stateMachine.Current()) }

// Role возвращает роль клиента
func (d *CallDialog) Role() DialogRole { return d.role }

// CallID возвращает Call-ID диалога
func (d *CallDialog) CallID() string { return d.callID }

// LocalTag возвращает локальный тег
func (d *CallDialog) LocalTag() string { return d.localTag }

// RemoteTag возвращает удаленный тег. Пустой, пока не получен ответ с To тегом.
func (d *CallDialog) RemoteTag() string { return d.remoteTag }

// LocalURI возвращает локальный адрес (From для UAC, To для UAS)
func (d *CallDialog) LocalURI() sip.Uri { return d.localURI }

// RemoteURI возвращает удаленный адрес
func (d *CallDialog) RemoteURI() sip.Uri { return d.remoteURI }

// RemoteTarget возвращает Contact удаленной стороны
func (d *CallDialog) RemoteTarget() sip.Uri { return d.remoteTarget }

// LocalSeq возвращает последний использованный локальный CSeq
func (d *CallDialog) LocalSeq() uint32 { return d.localSeq }

// RemoteSeq возвращает последний CSeq удаленной стороны
func (d *CallDialog) RemoteSeq() uint32 { return d.remoteSeq }

// Invite возвращает исходный INVITE
func (d *CallDialog) Invite() *sip.Request { return d.invite }

// OnStateChange устанавливает обработчик изменения состояния
func (d *CallDialog) OnStateChange(handler StateChangeHandler) {
	d.onStateChange = handler
}

// isPending true, пока INVITE транзакция не получила финальный ответ
func (d *CallDialog) isPending() bool {
	s := d.State()
	return s == DialogNone || s == DialogEarly
}

// fromHeader возвращает From для запросов внутри диалога
func (d *CallDialog) fromHeader() *sip.FromHeader {
	from := NewFromHeader(d.localURI, "")
	from.Params = from.Params.Add("tag", d.localTag)
	return from
}

// toHeader возвращает To для запросов внутри диалога
func (d *CallDialog) toHeader() *sip.ToHeader {
	to := NewToHeader(d.remoteURI, "")
	if d.remoteTag != "" {
		to.Params = to.Params.Add("tag", d.remoteTag)
	}
	return to
}
