package media_sdp

import (
	"fmt"
	"time"
)

// Direction направление медиа потока
type Direction string

const (
	DirectionSendRecv Direction = "sendrecv"
	DirectionSendOnly Direction = "sendonly"
	DirectionRecvOnly Direction = "recvonly"
	DirectionInactive Direction = "inactive"
)

// Reverse возвращает направление для ответной стороны:
// sendonly удаленной стороны означает recvonly для нас и наоборот
func (d Direction) Reverse() Direction {
	switch d {
	case DirectionSendOnly:
		return DirectionRecvOnly
	case DirectionRecvOnly:
		return DirectionSendOnly
	default:
		return d
	}
}

// CodecInfo содержит информацию о поддерживаемом кодеке
type CodecInfo struct {
	PayloadType uint8
	Name        string
	ClockRate   uint32
}

func (c CodecInfo) rtpmap() string {
	return fmt.Sprintf("%d %s/%d", c.PayloadType, c.Name, c.ClockRate)
}

// Статические кодеки RFC 3551
var (
	CodecPCMU = CodecInfo{PayloadType: 0, Name: "PCMU", ClockRate: 8000}
	CodecPCMA = CodecInfo{PayloadType: 8, Name: "PCMA", ClockRate: 8000}
	CodecG722 = CodecInfo{PayloadType: 9, Name: "G722", ClockRate: 8000}
)

// BuilderConfig содержит конфигурацию для создания SDP offer и answer
type BuilderConfig struct {
	// Основные параметры сессии
	SessionID   uint64
	SessionName string

	// Адрес, на котором принимается RTP
	Host string
	Port int

	// Кодеки в порядке приоритета
	Codecs    []CodecInfo
	Ptime     time.Duration
	Direction Direction

	// DTMF поддержка (RFC 4733)
	DTMFEnabled     bool
	DTMFPayloadType uint8

	// Дополнительные атрибуты медиа
	CustomAttributes map[string]string
}

// DefaultBuilderConfig возвращает конфигурацию по умолчанию для host:port
func DefaultBuilderConfig(host string, port int) BuilderConfig {
	return BuilderConfig{
		SessionName:     "Audio Call",
		Host:            host,
		Port:            port,
		Codecs:          []CodecInfo{CodecPCMU, CodecPCMA},
		Ptime:           20 * time.Millisecond,
		Direction:       DirectionSendRecv,
		DTMFEnabled:     true,
		DTMFPayloadType: 101,
	}
}

// Validate проверяет конфигурацию
func (c *BuilderConfig) Validate() error {
	if c.Host == "" {
		return NewSDPError(ErrorCodeInvalidConfig, "не указан адрес медиа")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return NewSDPError(ErrorCodeInvalidConfig, "некорректный порт %d", c.Port)
	}
	if len(c.Codecs) == 0 {
		return NewSDPError(ErrorCodeInvalidConfig, "не указан ни один кодек")
	}
	switch c.Direction {
	case "", DirectionSendRecv, DirectionSendOnly, DirectionRecvOnly, DirectionInactive:
	default:
		return NewSDPError(ErrorCodeInvalidDirection, "неизвестное направление %q", c.Direction)
	}
	if c.DTMFEnabled && c.DTMFPayloadType < 96 {
		return NewSDPError(ErrorCodeInvalidConfig, "DTMF payload type %d вне динамического диапазона", c.DTMFPayloadType)
	}
	return nil
}
