package client

import (
	"strings"

	"github.com/emiago/sipgo/sip"
)

// Version версия библиотеки, которую SoftPhone передает в DefaultHeaderWriteConfig
const Version = "0.3.0"

// productName префикс значения User-Agent
const productName = "soft_phone"

// HeaderWriteConfig описывает необязательные заголовки, которые добавляются
// в каждый исходящий запрос.
type HeaderWriteConfig struct {
	// UserAgent значение заголовка User-Agent. Пустая строка - заголовок не пишется.
	UserAgent string
	// AllowedMethods методы для заголовка Allow. Пустой список - заголовок не пишется.
	AllowedMethods []sip.RequestMethod
}

// DefaultHeaderWriteConfig возвращает конфигурацию по умолчанию для указанной версии
func DefaultHeaderWriteConfig(version string) HeaderWriteConfig {
	return HeaderWriteConfig{
		UserAgent: productName + " " + version,
		AllowedMethods: []sip.RequestMethod{
			sip.INVITE,
			sip.CANCEL,
			sip.BYE,
			sip.MESSAGE,
		},
	}
}

// WriteHeaders добавляет User-Agent и Allow в конец сообщения.
// Существующие заголовки не трогаются.
func (c *HeaderWriteConfig) WriteHeaders(m HeaderAppender) {
	for _, h := range c.headers() {
		m.AppendHeader(h)
	}
}

// AppendTo добавляет те же заголовки к срезу и возвращает его
func (c *HeaderWriteConfig) AppendTo(hs []sip.Header) []sip.Header {
	return append(hs, c.headers()...)
}

func (c *HeaderWriteConfig) headers() []sip.Header {
	if c == nil {
		return nil
	}
	var hs []sip.Header
	if c.UserAgent != "" {
		hs = append(hs, sip.NewHeader("User-Agent", c.UserAgent))
	}
	if len(c.AllowedMethods) > 0 {
		hs = append(hs, sip.NewHeader("Allow", joinMethods(c.AllowedMethods)))
	}
	return hs
}

func joinMethods(methods []sip.RequestMethod) string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.String()
	}
	return strings.Join(names, ", ")
}

// parseMethods преобразует имена методов из конфигурации
func parseMethods(names []string) []sip.RequestMethod {
	if len(names) == 0 {
		return nil
	}
	methods := make([]sip.RequestMethod, 0, len(names))
	for _, n := range names {
		n = strings.ToUpper(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		methods = append(methods, sip.RequestMethod(n))
	}
	return methods
}
