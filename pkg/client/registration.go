package client

import (
	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"
	"github.com/pkg/errors"
)

const (
	// DefaultInitialSeq начальное значение CSeq для регистрации и сообщений
	DefaultInitialSeq uint32 = 1
	// DefaultExpires срок регистрации в секундах
	DefaultExpires uint32 = 3600
)

// RegistrationState состояние регистрации аккаунта
type RegistrationState int

const (
	// RegistrationUnregistered - REGISTER еще не создавался
	RegistrationUnregistered RegistrationState = iota
	// RegistrationRegistering - REGISTER создан, ответ не получен
	RegistrationRegistering
	// RegistrationChallengeReceived - получен 401/407, нужен повторный REGISTER
	RegistrationChallengeReceived
	// RegistrationRegistered - вызывающий сообщил о 2xx ответе
	RegistrationRegistered
)

func (s RegistrationState) String() string {
	switch s {
	case RegistrationUnregistered:
		return "Unregistered"
	case RegistrationRegistering:
		return "Registering"
	case RegistrationChallengeReceived:
		return "ChallengeReceived"
	case RegistrationRegistered:
		return "Registered"
	default:
		return "Unknown"
	}
}

// Challenge сохраненный вызов аутентификации
type Challenge struct {
	Realm     string
	Nonce     string
	Algorithm string
	Opaque    string
	QOP       []string
	// Proxy true для 407 Proxy-Authenticate
	Proxy bool
	// NonceCount сколько раз вызов уже использовался
	NonceCount int

	parsed *digest.Challenge
}

// AuthorizationHeaderName имя заголовка ответа на вызов
func (c *Challenge) AuthorizationHeaderName() string {
	if c.Proxy {
		return "Proxy-Authorization"
	}
	return "Authorization"
}

// RegistrationManager хранит состояние регистрации одного аккаунта
// и создает REGISTER запросы.
//
// Не потокобезопасен: вызовы одного менеджера должны сериализоваться снаружи.
type RegistrationManager struct {
	accountURI sip.Uri
	localURI   sip.Uri

	username string
	password string
	expires  uint32

	seq     uint32
	callID  sip.CallIDHeader
	fromTag string

	challenge *Challenge
	state     RegistrationState
}

// RegistrationOption опция RegistrationManager
type RegistrationOption func(*RegistrationManager)

// WithCredentials задает имя пользователя и пароль для digest аутентификации
func WithCredentials(username, password string) RegistrationOption {
	return func(r *RegistrationManager) {
		r.username = username
		r.password = password
	}
}

// WithExpires задает значение заголовка Expires
func WithExpires(seconds uint32) RegistrationOption {
	return func(r *RegistrationManager) {
		r.expires = seconds
	}
}

// WithRegistrationInitialSeq задает первый CSeq регистрации.
// Значение больше MaxSeq приводит к ErrBuild при создании запроса.
func WithRegistrationInitialSeq(seq uint32) RegistrationOption {
	return func(r *RegistrationManager) {
		r.seq = seq
	}
}

// NewRegistrationManager создает менеджер регистрации. account - адрес аккаунта,
// local - адрес, на котором клиент принимает запросы (Contact).
// Если account содержит пароль, он используется как учетные данные.
func NewRegistrationManager(account, local sip.Uri, opts ...RegistrationOption) *RegistrationManager {
	r := &RegistrationManager{
		accountURI: *account.Clone(),
		localURI:   *local.Clone(),
		expires:    DefaultExpires,
		seq:        DefaultInitialSeq,
		callID:     sip.CallIDHeader(newCallID(local.Host)),
		fromTag:    newTag(),
	}
	if account.Password != "" {
		r.username = account.User
		r.password = account.Password
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AccountURI возвращает адрес аккаунта
func (r *RegistrationManager) AccountURI() sip.Uri { return *r.accountURI.Clone() }

// LocalURI возвращает локальный адрес
func (r *RegistrationManager) LocalURI() sip.Uri { return *r.localURI.Clone() }

// CallID возвращает неизменный Call-ID регистрации
func (r *RegistrationManager) CallID() string { return string(r.callID) }

// Seq возвращает CSeq, который получит следующий REGISTER
func (r *RegistrationManager) Seq() uint32 { return r.seq }

// State возвращает состояние регистрации
func (r *RegistrationManager) State() RegistrationState { return r.state }

// Challenge возвращает копию сохраненного вызова
func (r *RegistrationManager) Challenge() (Challenge, bool) {
	if r.challenge == nil {
		return Challenge{}, false
	}
	c := *r.challenge
	c.QOP = append([]string(nil), r.challenge.QOP...)
	c.parsed = nil
	return c, true
}

// ViaHeader возвращает Via, отражающий локальную привязку регистрации.
// Каждый вызов получает новый branch.
func (r *RegistrationManager) ViaHeader() *sip.ViaHeader {
	return viaFromURI(r.localURI)
}

// Request создает REGISTER запрос. Если сохранен вызов аутентификации,
// добавляется Authorization (или Proxy-Authorization).
// CSeq увеличивается только при успешной сборке.
func (r *RegistrationManager) Request(cfg *HeaderWriteConfig) (*sip.Request, error) {
	if err := checkSeq(r.seq); err != nil {
		return nil, buildError("register", err)
	}
	target := registrarURI(r.accountURI)
	identity := identityURI(r.accountURI)

	req := sip.NewRequest(sip.REGISTER, target)
	req.AppendHeader(r.ViaHeader())
	appendMaxForwards(req)

	from := NewFromHeader(identity, "")
	from.Params = from.Params.Add("tag", r.fromTag)
	req.AppendHeader(from)
	req.AppendHeader(NewToHeader(identity, ""))

	callID := r.callID
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: r.seq, MethodName: sip.REGISTER})
	req.AppendHeader(NewContactHeader(r.localURI, ""))

	expires := sip.ExpiresHeader(r.expires)
	req.AppendHeader(&expires)

	if r.challenge != nil {
		auth, err := r.authorization(target)
		if err != nil {
			return nil, err
		}
		req.AppendHeader(auth)
	}

	cfg.WriteHeaders(req)
	appendContentLength(req, 0)

	if err := validateRequest(req); err != nil {
		return nil, buildError("register", err)
	}

	if r.challenge != nil {
		r.challenge.NonceCount++
	}
	r.seq++
	if r.state != RegistrationRegistered {
		r.state = RegistrationRegistering
	}
	return req, nil
}

// authorization вычисляет digest ответ на сохраненный вызов
func (r *RegistrationManager) authorization(target sip.Uri) (sip.Header, error) {
	if r.username == "" || r.password == "" {
		return nil, challengeError("register", ErrNoCredentials)
	}

	cred, err := digest.Digest(r.challenge.parsed, digest.Options{
		Method:   sip.REGISTER.String(),
		URI:      target.String(),
		Username: r.username,
		Password: r.password,
		Count:    r.challenge.NonceCount + 1,
	})
	if err != nil {
		return nil, challengeError("register", errors.Wrap(err, "digest"))
	}

	return sip.NewHeader(r.challenge.AuthorizationHeaderName(), cred.String()), nil
}

// SetChallenge сохраняет вызов аутентификации из ответа 401/407.
// При ошибке ранее сохраненное состояние не меняется. Повторный REGISTER
// создается вызывающим через Request.
func (r *RegistrationManager) SetChallenge(res *sip.Response) error {
	c, err := parseChallenge(res)
	if err != nil {
		return challengeError("set challenge", err)
	}
	r.challenge = c
	r.state = RegistrationChallengeReceived
	return nil
}

// ConfirmRegistered отмечает регистрацию успешной по 2xx ответу с Call-ID регистрации.
// Сохраненный вызов остается для следующих обновлений регистрации.
func (r *RegistrationManager) ConfirmRegistered(res *sip.Response) error {
	if res == nil {
		return responseError("confirm registration", errors.New("nil response"))
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return responseError("confirm registration", errors.Errorf("status %d is not 2xx", res.StatusCode))
	}
	if callID := res.CallID(); callID == nil || callID.Value() != string(r.callID) {
		return responseError("confirm registration", errors.New("Call-ID does not match registration"))
	}
	r.state = RegistrationRegistered
	return nil
}

func parseChallenge(res *sip.Response) (*Challenge, error) {
	if res == nil {
		return nil, ErrNoChallenge
	}

	var (
		headerName string
		proxy      bool
	)
	switch res.StatusCode {
	case sip.StatusUnauthorized:
		headerName = "WWW-Authenticate"
	case sip.StatusProxyAuthRequired:
		headerName = "Proxy-Authenticate"
		proxy = true
	default:
		return nil, errors.Wrapf(ErrNoChallenge, "status %d", res.StatusCode)
	}

	h := res.GetHeader(headerName)
	if h == nil {
		return nil, errors.Wrapf(ErrNoChallenge, "no %s header", headerName)
	}

	parsed, err := digest.ParseChallenge(h.Value())
	if err != nil {
		return nil, errors.Wrapf(err, "invalid challenge %q", h.Value())
	}
	if parsed.Realm == "" {
		return nil, ErrMissingRealm
	}
	if parsed.Nonce == "" {
		return nil, ErrMissingNonce
	}

	return &Challenge{
		Realm:     parsed.Realm,
		Nonce:     parsed.Nonce,
		Algorithm: parsed.Algorithm,
		Opaque:    parsed.Opaque,
		QOP:       append([]string(nil), parsed.QOP...),
		Proxy:     proxy,
		parsed:    parsed,
	}, nil
}

// identityURI адрес для From/To без пароля
func identityURI(u sip.Uri) sip.Uri {
	c := *u.Clone()
	c.Password = ""
	return c
}
