package rate

import "time"

// Policy is a fixed-window limit applied per client to one route family.
type Policy struct {
	Route  string
	Limit  int
	Window time.Duration
}

// Per-client limits for the public routes.
var (
	ReportSubmission = Policy{Route: "report", Limit: 10, Window: time.Minute}
	StatusLookup     = Policy{Route: "status", Limit: 30, Window: time.Minute}
	Register         = Policy{Route: "register", Limit: 10, Window: time.Minute}
	VerifyEmail      = Policy{Route: "verify", Limit: 20, Window: time.Minute}
	StudentLogin     = Policy{Route: "login", Limit: 20, Window: time.Minute}
	AdminLogin       = Policy{Route: "admin_login", Limit: 10, Window: time.Minute}
)

// AllowClient applies p to the given client key, usually an IP address.
func (l *Limiter) AllowClient(p Policy, client string) (bool, time.Duration) {
	return l.Allow(p.Route+":"+client, p.Limit, p.Window)
}
