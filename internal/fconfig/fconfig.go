// Package fconfig holds the explicit, non-global context threaded through
// handle/reactor/overlay construction, replacing the teacher's cmn.GCO
// global-singleton pattern per spec §9's design note ("replace global
// mutable state with an explicit context passed through every function").
package fconfig

import (
	"os"
	"strconv"
	"time"
)

// Context is allocated once at process startup (a handle constructor or a
// CLI main) and threaded through explicitly; it is never package-global.
type Context struct {
	Rank uint32

	TagRegularInitial uint32
	TagGroupInitial   uint32

	ReactorDefaultTimeout time.Duration

	TraceByDefault  bool
	CoprocByDefault bool

	// attrs caches broker attributes fetched once per process, such as
	// "hostlist" (spec §6, collaborator surface). The core never parses
	// hostlist syntax itself; it only caches and hands back what it fetched.
	attrs map[string]string
}

// New constructs a Context with defaults drawn from the environment,
// mirroring the teacher's env-first config discovery (cmn/k8s, cc-backend's
// joho/godotenv-adjacent pattern) without a package-global singleton.
func New() *Context {
	c := &Context{
		TagRegularInitial:     1024,
		TagGroupInitial:       1024,
		ReactorDefaultTimeout: 30 * time.Second,
		attrs:                 make(map[string]string),
	}
	if v := os.Getenv("FLUX_RANK"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.Rank = uint32(n)
		}
	}
	if os.Getenv("FLUX_TRACE") == "1" {
		c.TraceByDefault = true
	}
	if os.Getenv("FLUX_COPROC") == "1" {
		c.CoprocByDefault = true
	}
	return c
}

// SetAttr / Attr cache a broker attribute such as "hostlist" fetched from
// the collaborator broker once per process.
func (c *Context) SetAttr(name, value string) { c.attrs[name] = value }

func (c *Context) Attr(name string) (string, bool) {
	v, ok := c.attrs[name]
	return v, ok
}
