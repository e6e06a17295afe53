package model

// SubscriptionUserInfo holds the aggregate traffic counters advertised to
// clients. Values are bytes except Expire, which is a unix timestamp (0 = never).
type SubscriptionUserInfo struct {
	Upload   int64
	Download int64
	Total    int64
	Expire   int64
}

// Add sums the traffic counters and keeps the later expiry.
func (u SubscriptionUserInfo) Add(o SubscriptionUserInfo) SubscriptionUserInfo {
	return SubscriptionUserInfo{
		Upload:   u.Upload + o.Upload,
		Download: u.Download + o.Download,
		Total:    u.Total + o.Total,
		Expire:   max(u.Expire, o.Expire),
	}
}
