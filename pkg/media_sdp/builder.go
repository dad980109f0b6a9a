package media_sdp

import (
	"strconv"
	"time"

	"github.com/pion/sdp/v3"
)

// CreateOffer создает SDP offer с одним аудио потоком
func CreateOffer(cfg BuilderConfig) (*sdp.SessionDescription, error) {
	if err := cfg.Validate(); err != nil {
		return nil, WrapSDPError(ErrorCodeSDPGeneration, err, "Не удалось создать SDP offer")
	}
	return buildDescription(cfg, cfg.Codecs, cfg.Direction, cfg.DTMFEnabled, cfg.DTMFPayloadType), nil
}

// CreateAnswer создает SDP answer на offer. Выбирается первый кодек offer,
// который есть в cfg.Codecs. Направление зеркалируется, DTMF включается
// только если поддерживается обеими сторонами.
func CreateAnswer(offer *sdp.SessionDescription, cfg BuilderConfig) (*sdp.SessionDescription, error) {
	if err := cfg.Validate(); err != nil {
		return nil, WrapSDPError(ErrorCodeSDPGeneration, err, "Не удалось создать SDP answer")
	}
	remote, err := ParseMedia(offer, cfg.Codecs)
	if err != nil {
		return nil, err
	}

	direction := remote.Direction.Reverse()
	if cfg.Direction != "" && cfg.Direction != DirectionSendRecv {
		direction = cfg.Direction
	}
	dtmf := cfg.DTMFEnabled && remote.DTMFEnabled

	answer := buildDescription(cfg, []CodecInfo{remote.Codec}, direction, dtmf, remote.DTMFPayloadType)
	answer.Origin.SessionVersion = offer.Origin.SessionVersion
	return answer, nil
}

func buildDescription(cfg BuilderConfig, codecs []CodecInfo, direction Direction, dtmf bool, dtmfPT uint8) *sdp.SessionDescription {
	sessionID := cfg.SessionID
	if sessionID == 0 {
		sessionID = uint64(time.Now().Unix())
	}
	sessionName := cfg.SessionName
	if sessionName == "" {
		sessionName = "-"
	}

	sd := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: sessionID,
			NetworkType:    "IN",
			AddressType:    addressType(cfg.Host),
			UnicastAddress: cfg.Host,
		},
		SessionName: sdp.SessionName(sessionName),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: addressType(cfg.Host),
			Address:     &sdp.Address{Address: cfg.Host},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{
				Timing: sdp.Timing{
					StartTime: 0,
					StopTime:  0,
				},
			},
		},
	}

	mediaDesc := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  "audio",
			Port:   sdp.RangedPort{Value: cfg.Port},
			Protos: []string{"RTP", "AVP"},
		},
	}
	for _, c := range codecs {
		mediaDesc.MediaName.Formats = append(mediaDesc.MediaName.Formats, strconv.Itoa(int(c.PayloadType)))
		mediaDesc.Attributes = append(mediaDesc.Attributes, sdp.NewAttribute("rtpmap", c.rtpmap()))
	}

	if dtmf {
		pt := strconv.Itoa(int(dtmfPT))
		mediaDesc.MediaName.Formats = append(mediaDesc.MediaName.Formats, pt)
		mediaDesc.Attributes = append(mediaDesc.Attributes,
			sdp.NewAttribute("rtpmap", pt+" telephone-event/8000"),
			sdp.NewAttribute("fmtp", pt+" 0-15"))
	}

	if cfg.Ptime > 0 {
		mediaDesc.Attributes = append(mediaDesc.Attributes,
			sdp.NewAttribute("ptime", strconv.Itoa(int(cfg.Ptime/time.Millisecond))))
	}
	if direction == "" {
		direction = DirectionSendRecv
	}
	mediaDesc.Attributes = append(mediaDesc.Attributes, sdp.NewPropertyAttribute(string(direction)))

	for key, value := range cfg.CustomAttributes {
		mediaDesc.Attributes = append(mediaDesc.Attributes, sdp.NewAttribute(key, value))
	}

	sd.MediaDescriptions = []*sdp.MediaDescription{mediaDesc}
	return sd
}
