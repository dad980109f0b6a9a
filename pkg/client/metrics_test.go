package client

import (
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(DefaultMetricsConfig())
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	m.RequestBuilt(sip.REGISTER)
	m.RequestBuilt(sip.REGISTER)
	m.RequestBuilt(sip.MESSAGE)
	m.ResponseBuilt(sip.NewResponse(487, "Request Terminated"))
	m.ResponseBuilt(nil)
	m.ChallengeProcessed(true)
	m.DialogTransition(DialogNone, DialogEarly)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("REGISTER")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("MESSAGE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.responsesTotal.WithLabelValues("487")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.challengesTotal.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dialogTransitions.WithLabelValues("none", "early")))

	// повторная регистрация тех же счетчиков невозможна
	assert.Error(t, m.Register(reg))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RequestBuilt(sip.INVITE)
		m.ResponseBuilt(sip.NewResponse(200, "OK"))
		m.ChallengeProcessed(false)
		m.DialogTransition(DialogEarly, DialogTerminated)
		assert.NoError(t, m.Register(prometheus.NewRegistry()))
	})
}
