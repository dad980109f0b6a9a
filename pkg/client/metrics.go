package client

import (
	"strconv"

	"github.com/emiago/sipgo/sip"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsConfig конфигурация метрик клиента
type MetricsConfig struct {
	// Namespace префикс для Prometheus метрик
	Namespace string
	// Subsystem подсистема для Prometheus метрик
	Subsystem string
}

// DefaultMetricsConfig возвращает конфигурацию по умолчанию
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "sip",
		Subsystem: "client",
	}
}

// Metrics счетчики сообщений, созданных и обработанных клиентом.
// Все методы допускают nil получатель: метрики выключены.
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	responsesTotal    *prometheus.CounterVec
	challengesTotal   *prometheus.CounterVec
	dialogTransitions *prometheus.CounterVec
}

// NewMetrics создает счетчики. Регистрация выполняется через Register.
func NewMetrics(config MetricsConfig) *Metrics {
	return &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "requests_total",
			Help:      "Total number of SIP requests built",
		}, []string{"method"}),
		responsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "responses_total",
			Help:      "Total number of SIP responses built",
		}, []string{"code"}),
		challengesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "challenges_total",
			Help:      "Total number of authentication challenges processed",
		}, []string{"result"}),
		dialogTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "dialog_transitions_total",
			Help:      "Total number of INVITE dialog state transitions",
		}, []string{"from_state", "to_state"}),
	}
}

// Register регистрирует счетчики в reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if m == nil {
		return nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requestsTotal,
		m.responsesTotal,
		m.challengesTotal,
		m.dialogTransitions,
	}
}

// RequestBuilt учитывает созданный запрос
func (m *Metrics) RequestBuilt(method sip.RequestMethod) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method.String()).Inc()
}

// ResponseBuilt учитывает созданный ответ
func (m *Metrics) ResponseBuilt(res *sip.Response) {
	if m == nil || res == nil {
		return
	}
	m.responsesTotal.WithLabelValues(strconv.Itoa(res.StatusCode)).Inc()
}

// ChallengeProcessed учитывает результат SetChallenge: "accepted" или "rejected"
func (m *Metrics) ChallengeProcessed(accepted bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.challengesTotal.WithLabelValues(result).Inc()
}

// DialogTransition учитывает переход состояния диалога
func (m *Metrics) DialogTransition(from, to DialogState) {
	if m == nil {
		return
	}
	m.dialogTransitions.WithLabelValues(from.String(), to.String()).Inc()
}
