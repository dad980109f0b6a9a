package media_sdp

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pion/sdp/v3"
)

// MediaInfo параметры аудио потока удаленной стороны
type MediaInfo struct {
	// Адрес RTP удаленной стороны
	Host string
	Port int

	// Выбранный кодек
	Codec CodecInfo
	// Direction направление, объявленное удаленной стороной
	Direction Direction
	Ptime     time.Duration

	DTMFEnabled     bool
	DTMFPayloadType uint8
}

// Addr возвращает адрес RTP в виде host:port
func (m MediaInfo) Addr() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// Parse разбирает тело SDP
func Parse(body []byte) (*sdp.SessionDescription, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(body); err != nil {
		return nil, WrapSDPError(ErrorCodeSDPParsing, err, "Не удалось разобрать SDP")
	}
	return &sd, nil
}

// ParseMedia извлекает аудио поток из SDP и выбирает первый кодек,
// поддерживаемый из supported (в порядке удаленной стороны)
func ParseMedia(sd *sdp.SessionDescription, supported []CodecInfo) (*MediaInfo, error) {
	if sd == nil {
		return nil, NewSDPError(ErrorCodeSDPParsing, "SDP не может быть nil")
	}

	var audioMedia *sdp.MediaDescription
	for _, media := range sd.MediaDescriptions {
		if media.MediaName.Media == "audio" {
			audioMedia = media
			break
		}
	}
	if audioMedia == nil {
		return nil, NewSDPError(ErrorCodeSDPParsing, "Аудио медиа описание не найдено в SDP")
	}

	info := &MediaInfo{
		Port:      audioMedia.MediaName.Port.Value,
		Direction: DirectionSendRecv,
		Ptime:     20 * time.Millisecond,
	}

	conn := audioMedia.ConnectionInformation
	if conn == nil {
		conn = sd.ConnectionInformation
	}
	if conn == nil || conn.Address == nil || conn.Address.Address == "" {
		return nil, NewSDPError(ErrorCodeSDPParsing, "Информация о соединении не найдена в SDP")
	}
	info.Host = conn.Address.Address

	codec, err := selectCodec(audioMedia, supported)
	if err != nil {
		return nil, err
	}
	info.Codec = codec

	for _, attr := range audioMedia.Attributes {
		switch attr.Key {
		case "sendonly", "recvonly", "sendrecv", "inactive":
			info.Direction = Direction(attr.Key)
		case "ptime":
			if ms, err := strconv.Atoi(attr.Value); err == nil {
				info.Ptime = time.Duration(ms) * time.Millisecond
			}
		case "rtpmap":
			if strings.Contains(attr.Value, "telephone-event") {
				parts := strings.SplitN(attr.Value, " ", 2)
				if pt, err := strconv.Atoi(parts[0]); err == nil {
					info.DTMFEnabled = true
					info.DTMFPayloadType = uint8(pt)
				}
			}
		}
	}
	return info, nil
}

// selectCodec ищет совместимый кодек среди предложенных форматов
func selectCodec(mediaDesc *sdp.MediaDescription, supported []CodecInfo) (CodecInfo, error) {
	rtpmapAttrs := make(map[string]string)
	for _, attr := range mediaDesc.Attributes {
		if attr.Key == "rtpmap" {
			parts := strings.SplitN(attr.Value, " ", 2)
			if len(parts) == 2 {
				rtpmapAttrs[parts[0]] = parts[1]
			}
		}
	}

	for _, format := range mediaDesc.MediaName.Formats {
		pt, err := strconv.Atoi(format)
		if err != nil {
			continue
		}
		for _, codec := range supported {
			if int(codec.PayloadType) != pt {
				continue
			}
			// Для статических payload type rtpmap необязателен
			if rtpmap, exists := rtpmapAttrs[format]; exists && !matchRtpmap(rtpmap, codec) {
				continue
			}
			return codec, nil
		}
	}

	return CodecInfo{}, NewSDPError(ErrorCodeIncompatibleCodec,
		"Не найден совместимый кодек среди предложенных: %v", mediaDesc.MediaName.Formats)
}

// matchRtpmap проверяет, что rtpmap "NAME/RATE[/CH]" соответствует кодеку
func matchRtpmap(rtpmap string, codec CodecInfo) bool {
	parts := strings.Split(rtpmap, "/")
	if len(parts) < 2 {
		return false
	}
	if !strings.EqualFold(parts[0], codec.Name) {
		return false
	}
	rate, err := strconv.ParseUint(parts[1], 10, 32)
	return err == nil && uint32(rate) == codec.ClockRate
}

func addressType(host string) string {
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		return "IP6"
	}
	return "IP4"
}
