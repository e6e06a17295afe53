// Package userinfo formats and parses the Subscription-Userinfo header that
// Clash clients read traffic and expiry from.
package userinfo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/John-Robertt/v2clash/internal/model"
)

const HeaderName = "Subscription-Userinfo"

// Format renders u as "upload=<n>; download=<n>; total=<n>; expire=<n>".
// Values are passed through unchecked.
func Format(u model.SubscriptionUserInfo) string {
	return fmt.Sprintf("upload=%d; download=%d; total=%d; expire=%d", u.Upload, u.Download, u.Total, u.Expire)
}

// Parse reads a header value produced by Format or by an upstream panel.
// Unknown keys are ignored and missing keys stay 0.
func Parse(s string) (model.SubscriptionUserInfo, error) {
	var u model.SubscriptionUserInfo
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return model.SubscriptionUserInfo{}, fmt.Errorf("userinfo: bad field %q", part)
		}
		var dst *int64
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "upload":
			dst = &u.Upload
		case "download":
			dst = &u.Download
		case "total":
			dst = &u.Total
		case "expire":
			dst = &u.Expire
		default:
			continue
		}
		n, err := parseCounter(strings.TrimSpace(v))
		if err != nil {
			return model.SubscriptionUserInfo{}, fmt.Errorf("userinfo: %s: %w", k, err)
		}
		*dst = n
	}
	return u, nil
}

// parseCounter accepts integers and, since some panels send them, floats.
func parseCounter(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
