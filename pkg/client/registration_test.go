package client

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func md5hex(format string, args ...any) string {
	sum := md5.Sum([]byte(fmt.Sprintf(format, args...)))
	return hex.EncodeToString(sum[:])
}

func okResponse(callID string) *sip.Response {
	res := sip.NewResponse(sip.StatusOK, "OK")
	cid := sip.CallIDHeader(callID)
	res.AppendHeader(&cid)
	return res
}

// TestRegistrationRequest_SequenceAndCallID проверяет, что CSeq растет на 1,
// а Call-ID не меняется между запросами
func TestRegistrationRequest_SequenceAndCallID(t *testing.T) {
	cfg := DefaultHeaderWriteConfig("test")
	r := NewRegistrationManager(testAccount(), testLocal(), WithRegistrationInitialSeq(5))

	const n = 10
	var callID string
	for i := 0; i < n; i++ {
		req, err := r.Request(&cfg)
		require.NoError(t, err)

		cseq := req.CSeq()
		require.NotNil(t, cseq)
		assert.Equal(t, uint32(5+i), cseq.SeqNo)
		assert.Equal(t, sip.REGISTER, cseq.MethodName)

		if i == 0 {
			callID = req.CallID().Value()
		}
		assert.Equal(t, callID, req.CallID().Value())
	}
	assert.Equal(t, uint32(5+n), r.Seq())
	assert.Equal(t, callID, r.CallID())
}

// TestRegistrationRequest_SeqLimit проверяет, что CSeq не переходит через 2^31-1
// и не начинается заново с нуля
func TestRegistrationRequest_SeqLimit(t *testing.T) {
	r := NewRegistrationManager(testAccount(), testLocal(), WithRegistrationInitialSeq(MaxSeq))

	req, err := r.Request(nil)
	require.NoError(t, err)
	assert.Equal(t, MaxSeq, req.CSeq().SeqNo)

	_, err = r.Request(nil)
	assert.ErrorIs(t, err, ErrBuild)
	_, err = r.Request(nil)
	assert.ErrorIs(t, err, ErrBuild)
	assert.Equal(t, MaxSeq+1, r.Seq())

	r = NewRegistrationManager(testAccount(), testLocal(), WithRegistrationInitialSeq(math.MaxUint32))
	_, err = r.Request(nil)
	assert.ErrorIs(t, err, ErrBuild)
	assert.Equal(t, uint32(math.MaxUint32), r.Seq())
	assert.Equal(t, RegistrationUnregistered, r.State())
}

func TestRegistrationRequest_Headers(t *testing.T) {
	cfg := DefaultHeaderWriteConfig("test")
	r := NewRegistrationManager(testAccount(), testLocal(), WithExpires(120))

	req, err := r.Request(&cfg)
	require.NoError(t, err)

	assert.Equal(t, sip.REGISTER, req.Method)
	assert.Equal(t, "example.com", req.Recipient.Host)
	assert.Empty(t, req.Recipient.User)
	assert.Equal(t, []string{
		"Via", "Max-Forwards", "From", "To", "Call-ID", "CSeq",
		"Contact", "Expires", "User-Agent", "Allow", "Content-Length",
	}, headerNames(req.Headers()))

	from, to := req.From(), req.To()
	assert.Equal(t, "alice", from.Address.User)
	assert.Equal(t, "alice", to.Address.User)
	tag, ok := from.Params.Get("tag")
	assert.True(t, ok)
	assert.NotEmpty(t, tag)

	contact := req.Contact()
	require.NotNil(t, contact)
	assert.Equal(t, "192.168.1.10", contact.Address.Host)
	assert.Equal(t, 5060, contact.Address.Port)

	assert.Equal(t, "120", req.GetHeader("Expires").Value())
	assert.Equal(t, "0", req.GetHeader("Content-Length").Value())
	assert.Equal(t, RegistrationRegistering, r.State())

	// From тег стабилен между запросами
	req2, err := r.Request(&cfg)
	require.NoError(t, err)
	tag2, _ := req2.From().Params.Get("tag")
	assert.Equal(t, tag, tag2)
}

func TestRegistrationManager_ViaHeader(t *testing.T) {
	local := testLocal()
	local.UriParams = sip.NewParams().Add("transport", "tcp")
	r := NewRegistrationManager(testAccount(), local)

	v1 := r.ViaHeader()
	v2 := r.ViaHeader()
	assert.Equal(t, "TCP", v1.Transport)
	assert.Equal(t, "192.168.1.10", v1.Host)
	assert.Equal(t, 5060, v1.Port)

	b1, _ := v1.Params.Get("branch")
	b2, _ := v2.Params.Get("branch")
	assert.Contains(t, b1, branchMagicCookie)
	assert.NotEqual(t, b1, b2)
}

// TestSetChallenge_Rejected проверяет, что ошибочный вызов не меняет состояние
func TestSetChallenge_Rejected(t *testing.T) {
	tests := []struct {
		name string
		res  *sip.Response
	}{
		{name: "nil", res: nil},
		{name: "wrong status", res: challengeResponse(200, "WWW-Authenticate", `Digest realm="a", nonce="b"`)},
		{name: "no header", res: challengeResponse(401, "", "")},
		{name: "proxy header on 401", res: challengeResponse(401, "Proxy-Authenticate", `Digest realm="a", nonce="b"`)},
		{name: "no realm", res: challengeResponse(401, "WWW-Authenticate", `Digest nonce="b"`)},
		{name: "no nonce", res: challengeResponse(401, "WWW-Authenticate", `Digest realm="a"`)},
		{name: "not digest", res: challengeResponse(401, "WWW-Authenticate", `Basic realm="a"`)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistrationManager(testAccount(), testLocal(), WithCredentials("alice", "secret"))
			cfg := DefaultHeaderWriteConfig("test")
			_, err := r.Request(&cfg)
			require.NoError(t, err)

			err = r.SetChallenge(tc.res)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrChallenge)

			assert.Equal(t, RegistrationRegistering, r.State())
			_, stored := r.Challenge()
			assert.False(t, stored)
			assert.Equal(t, uint32(2), r.Seq())
		})
	}
}

func TestSetChallenge_KeepsPrevious(t *testing.T) {
	r := NewRegistrationManager(testAccount(), testLocal(), WithCredentials("alice", "secret"))
	require.NoError(t, r.SetChallenge(challengeResponse(401, "WWW-Authenticate", `Digest realm="first", nonce="n1"`)))

	err := r.SetChallenge(challengeResponse(401, "", ""))
	assert.ErrorIs(t, err, ErrNoChallenge)

	c, ok := r.Challenge()
	require.True(t, ok)
	assert.Equal(t, "first", c.Realm)
	assert.Equal(t, "n1", c.Nonce)
	assert.Equal(t, RegistrationChallengeReceived, r.State())
}

// TestRegistrationRequest_Authorization сверяет digest ответ с вычислением по RFC 2617
func TestRegistrationRequest_Authorization(t *testing.T) {
	cfg := DefaultHeaderWriteConfig("test")
	r := NewRegistrationManager(testAccount(), testLocal(), WithCredentials("alice", "secret"))

	_, err := r.Request(&cfg)
	require.NoError(t, err)

	require.NoError(t, r.SetChallenge(challengeResponse(401, "WWW-Authenticate",
		`Digest realm="asterisk", nonce="abc123", algorithm=MD5`)))
	assert.Equal(t, RegistrationChallengeReceived, r.State())

	req, err := r.Request(&cfg)
	require.NoError(t, err)
	assert.Equal(t, RegistrationRegistering, r.State())
	assert.Equal(t, uint32(2), req.CSeq().SeqNo)

	auth := req.GetHeader("Authorization")
	require.NotNil(t, auth)
	assert.Nil(t, req.GetHeader("Proxy-Authorization"))

	ha1 := md5hex("%s:%s:%s", "alice", "asterisk", "secret")
	ha2 := md5hex("%s:%s", "REGISTER", "sip:example.com")
	expected := md5hex("%s:%s:%s", ha1, "abc123", ha2)

	value := auth.Value()
	assert.Contains(t, value, `username="alice"`)
	assert.Contains(t, value, `realm="asterisk"`)
	assert.Contains(t, value, `nonce="abc123"`)
	assert.Contains(t, value, `uri="sip:example.com"`)
	assert.Contains(t, value, `response="`+expected+`"`)

	// Authorization стоит перед заголовками конфигурации
	names := headerNames(req.Headers())
	assert.Equal(t, []string{"Expires", "Authorization", "User-Agent"}, names[7:10])
}

func TestRegistrationRequest_ProxyAuthorization(t *testing.T) {
	r := NewRegistrationManager(testAccount(), testLocal(), WithCredentials("alice", "secret"))
	require.NoError(t, r.SetChallenge(challengeResponse(407, "Proxy-Authenticate",
		`Digest realm="proxy", nonce="xyz"`)))

	c, ok := r.Challenge()
	require.True(t, ok)
	assert.True(t, c.Proxy)

	req, err := r.Request(nil)
	require.NoError(t, err)
	assert.Nil(t, req.GetHeader("Authorization"))
	require.NotNil(t, req.GetHeader("Proxy-Authorization"))
	assert.Contains(t, req.GetHeader("Proxy-Authorization").Value(), `realm="proxy"`)
}

func TestRegistrationRequest_NonceCount(t *testing.T) {
	r := NewRegistrationManager(testAccount(), testLocal(), WithCredentials("alice", "secret"))
	require.NoError(t, r.SetChallenge(challengeResponse(401, "WWW-Authenticate",
		`Digest realm="asterisk", nonce="abc", qop="auth"`)))

	req1, err := r.Request(nil)
	require.NoError(t, err)
	req2, err := r.Request(nil)
	require.NoError(t, err)

	assert.Contains(t, req1.GetHeader("Authorization").Value(), "nc=00000001")
	assert.Contains(t, req2.GetHeader("Authorization").Value(), "nc=00000002")

	c, _ := r.Challenge()
	assert.Equal(t, 2, c.NonceCount)
}

func TestRegistrationRequest_NoCredentials(t *testing.T) {
	r := NewRegistrationManager(testAccount(), testLocal())
	require.NoError(t, r.SetChallenge(challengeResponse(401, "WWW-Authenticate",
		`Digest realm="asterisk", nonce="abc"`)))

	_, err := r.Request(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChallenge)
	assert.ErrorIs(t, err, ErrNoCredentials)

	// неудачная сборка не тратит CSeq
	assert.Equal(t, DefaultInitialSeq, r.Seq())
	assert.Equal(t, RegistrationChallengeReceived, r.State())
}

func TestRegistrationManager_CredentialsFromURI(t *testing.T) {
	account := WithAuth(testAccount(), "alice", "secret")
	r := NewRegistrationManager(account, testLocal())
	require.NoError(t, r.SetChallenge(challengeResponse(401, "WWW-Authenticate",
		`Digest realm="asterisk", nonce="abc"`)))

	req, err := r.Request(nil)
	require.NoError(t, err)
	assert.Contains(t, req.GetHeader("Authorization").Value(), `username="alice"`)
	// пароль не попадает в From/To
	assert.Empty(t, req.From().Address.Password)
	assert.Empty(t, req.To().Address.Password)
}

func TestConfirmRegistered(t *testing.T) {
	r := NewRegistrationManager(testAccount(), testLocal())
	_, err := r.Request(nil)
	require.NoError(t, err)

	err = r.ConfirmRegistered(okResponse("other-call-id"))
	assert.ErrorIs(t, err, ErrResponse)

	err = r.ConfirmRegistered(challengeResponse(401, "", ""))
	assert.ErrorIs(t, err, ErrResponse)
	assert.Equal(t, RegistrationRegistering, r.State())

	require.NoError(t, r.ConfirmRegistered(okResponse(r.CallID())))
	assert.Equal(t, RegistrationRegistered, r.State())

	// обновление регистрации не сбрасывает состояние
	_, err = r.Request(nil)
	require.NoError(t, err)
	assert.Equal(t, RegistrationRegistered, r.State())
}

func TestRegistrationState_String(t *testing.T) {
	assert.Equal(t, "Unregistered", RegistrationUnregistered.String())
	assert.Equal(t, "ChallengeReceived", RegistrationChallengeReceived.String())
	assert.Equal(t, "Unknown", RegistrationState(42).String())
}
