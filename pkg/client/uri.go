package client

import (
	"net"

	"github.com/emiago/sipgo/sip"
	"github.com/pkg/errors"
)

// DomainURI создает sip URI по доменному имени. port == 0 означает порт по умолчанию.
func DomainURI(domain string, port int) sip.Uri {
	return sip.Uri{
		Scheme: "sip",
		Host:   domain,
		Port:   port,
	}
}

// IPURI создает sip URI по IP адресу
func IPURI(ip net.IP, port int) sip.Uri {
	return sip.Uri{
		Scheme: "sip",
		Host:   ip.String(),
		Port:   port,
	}
}

// WithAuth возвращает копию URI с user частью и паролем
func WithAuth(u sip.Uri, user, password string) sip.Uri {
	c := *u.Clone()
	c.User = user
	c.Password = password
	return c
}

// ParseURI разбирает строку в sip.Uri. Угловые скобки допускаются.
func ParseURI(s string) (sip.Uri, error) {
	if len(s) > 1 && s[0] == '<' && s[len(s)-1] == '>' {
		s = s[1 : len(s)-1]
	}
	var u sip.Uri
	if err := sip.ParseUri(s, &u); err != nil {
		return sip.Uri{}, serializationError("parse uri", errors.Wrapf(err, "uri %q", s))
	}
	return u, nil
}

// NewFromHeader создает From без параметров. displayName может быть пустым.
func NewFromHeader(u sip.Uri, displayName string) *sip.FromHeader {
	return &sip.FromHeader{
		DisplayName: displayName,
		Address:     *u.Clone(),
		Params:      sip.NewParams(),
	}
}

// NewToHeader создает To без параметров
func NewToHeader(u sip.Uri, displayName string) *sip.ToHeader {
	return &sip.ToHeader{
		DisplayName: displayName,
		Address:     *u.Clone(),
		Params:      sip.NewParams(),
	}
}

// NewContactHeader создает Contact без параметров
func NewContactHeader(u sip.Uri, displayName string) *sip.ContactHeader {
	return &sip.ContactHeader{
		DisplayName: displayName,
		Address:     *u.Clone(),
		Params:      sip.NewParams(),
	}
}
