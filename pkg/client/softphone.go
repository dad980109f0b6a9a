package client

import (
	"log/slog"

	"github.com/emiago/sipgo/sip"
	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"

	"github.com/arzzra/sipclient/pkg/logging"
)

// SoftPhone объединяет состояние одного аккаунта: политику заголовков,
// регистрацию, сообщения и INVITE диалоги. Все сообщения только строятся,
// отправку и прием выполняет транспорт вызывающего.
//
// Не потокобезопасен: вызовы должны сериализоваться снаружи.
type SoftPhone struct {
	headerCfg HeaderWriteConfig

	registry  *RegistrationManager
	messaging *MessageWriter
	invites   *InviteHelper

	logger  *slog.Logger
	metrics *Metrics
}

type options struct {
	headerCfg   *HeaderWriteConfig
	logger      *slog.Logger
	metrics     *Metrics
	registerOps []RegistrationOption
	messageOps  []MessageOption
}

// Option опция SoftPhone
type Option func(*options)

// WithHeaderConfig задает политику заголовков вместо DefaultHeaderWriteConfig(Version)
func WithHeaderConfig(cfg HeaderWriteConfig) Option {
	return func(o *options) {
		o.headerCfg = &cfg
	}
}

// WithLogger задает логгер. По умолчанию логирование выключено.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics включает счетчики
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithRegistrationOptions передает опции в RegistrationManager
func WithRegistrationOptions(opts ...RegistrationOption) Option {
	return func(o *options) {
		o.registerOps = append(o.registerOps, opts...)
	}
}

// WithMessageOptions передает опции в MessageWriter
func WithMessageOptions(opts ...MessageOption) Option {
	return func(o *options) {
		o.messageOps = append(o.messageOps, opts...)
	}
}

// New создает SoftPhone. local - адрес, на котором клиент принимает запросы,
// account - адрес аккаунта (может содержать пароль).
func New(local, account sip.Uri, opts ...Option) *SoftPhone {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	p := &SoftPhone{
		headerCfg: DefaultHeaderWriteConfig(Version),
		registry:  NewRegistrationManager(account, local, o.registerOps...),
		messaging: NewMessageWriter(account, o.messageOps...),
		invites:   NewInviteHelper(account, local),
		logger:    o.logger,
		metrics:   o.metrics,
	}
	if o.headerCfg != nil {
		p.headerCfg = *o.headerCfg
	}
	if p.logger == nil {
		p.logger = logging.Noop()
	}
	p.logger = p.logger.With(slog.Any("account", identityURI(account)))
	return p
}

// NewFromConfig создает SoftPhone по конфигурации. Опции применяются
// после значений из конфигурации.
func NewFromConfig(cfg Config, opts ...Option) (*SoftPhone, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	account, local, err := cfg.uris()
	if err != nil {
		return nil, err
	}

	all := []Option{
		WithHeaderConfig(cfg.HeaderConfig()),
		WithRegistrationOptions(cfg.registrationOptions()...),
		WithMessageOptions(cfg.messageOptions()...),
	}
	return New(local, account, append(all, opts...)...), nil
}

// Registry возвращает менеджер регистрации
func (p *SoftPhone) Registry() *RegistrationManager { return p.registry }

// Messaging возвращает MessageWriter
func (p *SoftPhone) Messaging() *MessageWriter { return p.messaging }

// Invites возвращает InviteHelper
func (p *SoftPhone) Invites() *InviteHelper { return p.invites }

// HeaderConfig возвращает политику заголовков. Изменения через указатель
// действуют на следующие сообщения.
func (p *SoftPhone) HeaderConfig() *HeaderWriteConfig { return &p.headerCfg }

// SetHeaderConfig заменяет политику заголовков
func (p *SoftPhone) SetHeaderConfig(cfg HeaderWriteConfig) { p.headerCfg = cfg }

// RegisterRequest создает следующий REGISTER
func (p *SoftPhone) RegisterRequest() (*sip.Request, error) {
	req, err := p.registry.Request(&p.headerCfg)
	if err != nil {
		p.logger.Warn("SoftPhone.RegisterRequest failed", slog.Any("error", err))
		return nil, err
	}
	p.metrics.RequestBuilt(sip.REGISTER)
	p.logger.Debug("SoftPhone.RegisterRequest",
		slog.Any("request", req),
		slog.String("state", p.registry.State().String()))
	return req, nil
}

// SetRegisterChallenge передает ответ 401/407 менеджеру регистрации
func (p *SoftPhone) SetRegisterChallenge(res *sip.Response) error {
	if err := p.registry.SetChallenge(res); err != nil {
		p.metrics.ChallengeProcessed(false)
		p.logger.Warn("SoftPhone.SetRegisterChallenge rejected",
			slog.Any("response", res),
			slog.Any("error", err))
		return err
	}
	p.metrics.ChallengeProcessed(true)
	c, _ := p.registry.Challenge()
	p.logger.Debug("SoftPhone.SetRegisterChallenge",
		slog.String("realm", c.Realm),
		slog.Bool("proxy", c.Proxy))
	return nil
}

// ConfirmRegistered сообщает менеджеру регистрации о 2xx ответе
func (p *SoftPhone) ConfirmRegistered(res *sip.Response) error {
	if err := p.registry.ConfirmRegistered(res); err != nil {
		p.logger.Warn("SoftPhone.ConfirmRegistered failed", slog.Any("error", err))
		return err
	}
	p.logger.Debug("SoftPhone.ConfirmRegistered", slog.String("call_id", p.registry.CallID()))
	return nil
}

// WriteMessage создает MESSAGE для dest. Via берется из регистрации.
func (p *SoftPhone) WriteMessage(body []byte, dest sip.Uri) (*sip.Request, error) {
	req, err := p.messaging.WriteMessage(body, dest, p.registry.ViaHeader(), &p.headerCfg)
	if err != nil {
		p.logger.Warn("SoftPhone.WriteMessage failed", slog.Any("error", err))
		return nil, err
	}
	p.metrics.RequestBuilt(sip.MESSAGE)
	p.logger.Debug("SoftPhone.WriteMessage",
		slog.Any("request", req),
		slog.Int("size", len(body)))
	return req, nil
}

// CancelResponse создает пару ответов на входящий CANCEL по его заголовкам:
// 200 для CANCEL и 487 для отменяемого INVITE.
func (p *SoftPhone) CancelResponse(headers []sip.Header) (*sip.Response, *sip.Response, error) {
	ok, terminated, err := cancelResponses(headers)
	if err != nil {
		return nil, nil, err
	}
	p.metrics.ResponseBuilt(ok)
	p.metrics.ResponseBuilt(terminated)
	p.logger.Debug("SoftPhone.CancelResponse",
		slog.Any("ok", ok),
		slog.Any("terminated", terminated))
	return ok, terminated, nil
}

// HandleCancel завершает входящий диалог, если он известен, и создает пару
// ответов. Неизвестный диалог не мешает построению ответов.
func (p *SoftPhone) HandleCancel(req *sip.Request) (*sip.Response, *sip.Response, error) {
	if req == nil {
		return nil, nil, responseError("handle cancel", errors.New("nil request"))
	}
	d, err := p.invites.HandleCancel(req)
	switch {
	case err == nil:
		p.logger.Debug("SoftPhone.HandleCancel",
			slog.String("dialogID", d.ID()),
			slog.String("state", d.State().String()))
	case errors.Is(err, ErrDialogNotFound):
		p.logger.Debug("SoftPhone.HandleCancel dialog not found", slog.Any("request", req))
	default:
		return nil, nil, err
	}
	return p.CancelResponse(req.Headers())
}

// Invite создает INVITE к target. Via берется из регистрации.
func (p *SoftPhone) Invite(target sip.Uri, offer *sdp.SessionDescription) (*sip.Request, *CallDialog, error) {
	req, d, err := p.invites.Invite(target, p.registry.ViaHeader(), &p.headerCfg, offer)
	if err != nil {
		p.logger.Warn("SoftPhone.Invite failed", slog.Any("error", err))
		return nil, nil, err
	}
	p.watch(d)
	p.metrics.RequestBuilt(sip.INVITE)
	p.logger.Debug("SoftPhone.Invite",
		slog.Any("request", req),
		slog.String("dialogID", d.ID()))
	return req, d, nil
}

// Receive регистрирует входящий INVITE
func (p *SoftPhone) Receive(req *sip.Request) (*CallDialog, error) {
	d, err := p.invites.Receive(req)
	if err != nil {
		p.logger.Warn("SoftPhone.Receive failed", slog.Any("error", err))
		return nil, err
	}
	p.watch(d)
	p.logger.Debug("SoftPhone.Receive",
		slog.Any("request", req),
		slog.String("dialogID", d.ID()))
	return d, nil
}

// Respond создает ответ на входящий INVITE
func (p *SoftPhone) Respond(d *CallDialog, code int, reason string, answer *sdp.SessionDescription) (*sip.Response, error) {
	res, err := p.invites.Respond(d, code, reason, &p.headerCfg, answer)
	if err != nil {
		return nil, err
	}
	p.metrics.ResponseBuilt(res)
	return res, nil
}

// HandleResponse применяет ответ к исходящему диалогу
func (p *SoftPhone) HandleResponse(res *sip.Response) (*CallDialog, error) {
	d, err := p.invites.HandleResponse(res)
	if err != nil {
		p.logger.Debug("SoftPhone.HandleResponse ignored",
			slog.Any("response", res),
			slog.Any("error", err))
		return nil, err
	}
	return d, nil
}

// Cancel создает CANCEL для исходящего INVITE без финального ответа
func (p *SoftPhone) Cancel(d *CallDialog) (*sip.Request, error) {
	req, err := p.invites.Cancel(d)
	if err != nil {
		return nil, err
	}
	p.metrics.RequestBuilt(sip.CANCEL)
	return req, nil
}

// Ack создает ACK на 2xx
func (p *SoftPhone) Ack(d *CallDialog) (*sip.Request, error) {
	req, err := p.invites.Ack(d, p.registry.ViaHeader())
	if err != nil {
		return nil, err
	}
	p.metrics.RequestBuilt(sip.ACK)
	return req, nil
}

// Bye создает BYE внутри подтвержденного диалога
func (p *SoftPhone) Bye(d *CallDialog) (*sip.Request, error) {
	req, err := p.invites.Bye(d, p.registry.ViaHeader(), &p.headerCfg)
	if err != nil {
		return nil, err
	}
	p.metrics.RequestBuilt(sip.BYE)
	return req, nil
}

// HandleBye завершает диалог по входящему BYE и возвращает 200 OK
func (p *SoftPhone) HandleBye(req *sip.Request) (*sip.Response, error) {
	d, res, err := p.invites.HandleBye(req, &p.headerCfg)
	if err != nil {
		p.logger.Debug("SoftPhone.HandleBye failed", slog.Any("error", err))
		return nil, err
	}
	p.metrics.ResponseBuilt(res)
	p.logger.Debug("SoftPhone.HandleBye", slog.String("dialogID", d.ID()))
	return res, nil
}

// watch подключает логирование и метрики к переходам диалога
func (p *SoftPhone) watch(d *CallDialog) {
	d.OnStateChange(func(d *CallDialog, from, to DialogState) {
		p.metrics.DialogTransition(from, to)
		p.logger.Debug("CallDialog state changed",
			slog.String("dialogID", d.ID()),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	})
}
