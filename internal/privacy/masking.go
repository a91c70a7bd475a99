package privacy

import (
	"net"
	"strings"

	"queuesync/internal/constants"

	"github.com/sirupsen/logrus"
)

// MaskUserID keeps the last few characters of a chat user id.
// Example: "customer-8812" -> "*********8812"
func MaskUserID(userID string) string {
	return maskString(userID, constants.DefaultUserIDVisibleChars)
}

// MaskIP zeroes the host part of an address: the last octet for IPv4 and
// everything after the /48 prefix for IPv6. Unparseable input is fully
// masked.
func MaskIP(addr string) string {
	if addr == "" {
		return ""
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return strings.Repeat("*", len([]rune(addr)))
	}
	if v4 := ip.To4(); v4 != nil {
		return net.IPv4(v4[0], v4[1], v4[2], 0).String()
	}
	return ip.Mask(net.CIDRMask(48, 128)).String()
}

// MaskToken never reveals any part of a credential.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	return "[REDACTED]"
}

func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	if len(r) <= keepLast {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-keepLast) + string(r[len(r)-keepLast:])
}

// MaskSensitiveFields returns a copy of fields with user ids, client
// addresses and credentials masked.
func MaskSensitiveFields(fields logrus.Fields) logrus.Fields {
	if fields == nil {
		return nil
	}

	masked := make(logrus.Fields, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}
		switch k {
		case "user_id", "userId":
			masked[k] = MaskUserID(s)
		case "remote_ip", "client_ip":
			masked[k] = MaskIP(s)
		case "token", "authorization", "signature", "secret":
			masked[k] = MaskToken(s)
		default:
			masked[k] = v
		}
	}
	return masked
}
