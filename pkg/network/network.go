// Package network samples per-process I/O deltas and the remote endpoints a
// process talks to.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/srodi/framelens/pkg/types"
)

const (
	defaultLookupTimeout = 500 * time.Millisecond
	defaultCacheTTL      = time.Minute
)

// Counters are cumulative byte counters of one process.
type Counters struct {
	ReadBytes  uint64
	WriteBytes uint64
}

// ioCounters and connections allow tests to stub gopsutil.
var (
	ioCounters = func(ctx context.Context, pid int32) (Counters, error) {
		p, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			return Counters{}, err
		}
		io, err := p.IOCountersWithContext(ctx)
		if err != nil {
			return Counters{}, err
		}
		return Counters{ReadBytes: io.ReadBytes, WriteBytes: io.WriteBytes}, nil
	}
	connections = func(ctx context.Context, pid int32) ([]psnet.ConnectionStat, error) {
		return psnet.ConnectionsPidWithContext(ctx, "inet", pid)
	}
)

// Resolver performs reverse DNS lookups. *net.Resolver satisfies it.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Options configures a Sampler. Zero values pick the defaults.
type Options struct {
	Resolver      Resolver
	LookupTimeout time.Duration
	CacheTTL      time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

type hostEntry struct {
	host    string
	ok      bool
	expires time.Time
}

// Sampler keeps the previous counters of every sampled pid.
type Sampler struct {
	resolver      Resolver
	lookupTimeout time.Duration
	cacheTTL      time.Duration
	now           func() time.Time
	logger        *slog.Logger

	mu   sync.Mutex
	prev map[int32]Counters

	cacheMu sync.Mutex
	hosts   map[string]hostEntry
}

// NewSampler builds a sampler from opts.
func NewSampler(opts Options) *Sampler {
	s := &Sampler{
		resolver:      opts.Resolver,
		lookupTimeout: opts.LookupTimeout,
		cacheTTL:      opts.CacheTTL,
		now:           opts.Now,
		logger:        opts.Logger,
		prev:          make(map[int32]Counters),
		hosts:         make(map[string]hostEntry),
	}
	if s.resolver == nil {
		s.resolver = net.DefaultResolver
	}
	if s.lookupTimeout <= 0 {
		s.lookupTimeout = defaultLookupTimeout
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = defaultCacheTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Sample returns the I/O since the previous sample of pid. The first sample
// of a pid reports zero bytes. Connection listing failures degrade to an
// empty connection set; only unreadable counters fail the sample.
func (s *Sampler) Sample(ctx context.Context, pid int32) (types.NetworkDelta, error) {
	cur, err := ioCounters(ctx, pid)
	if err != nil {
		return types.NetworkDelta{}, fmt.Errorf("%w: io counters of pid %d: %v", types.ErrProcessUnavailable, pid, err)
	}

	var delta types.NetworkDelta
	s.mu.Lock()
	if prev, ok := s.prev[pid]; ok {
		delta.BytesSent = sub(cur.WriteBytes, prev.WriteBytes)
		delta.BytesRecv = sub(cur.ReadBytes, prev.ReadBytes)
	}
	s.prev[pid] = cur
	s.mu.Unlock()

	conns, err := connections(ctx, pid)
	if err != nil {
		s.logger.Debug("listing connections failed", "pid", pid, "err", err)
		conns = nil
	}
	delta.ActiveConnections = len(conns)
	delta.Servers = s.servers(ctx, conns)
	return delta, nil
}

// Forget drops pid's previous counters.
func (s *Sampler) Forget(pid int32) {
	s.mu.Lock()
	delete(s.prev, pid)
	s.mu.Unlock()
}

// Tracked reports whether pid has previous counters.
func (s *Sampler) Tracked(pid int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.prev[pid]
	return ok
}

// sub treats a counter that went backwards as no traffic.
func sub(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

// servers resolves the remote endpoint of every connection, in connection
// order. Endpoints that do not resolve are dropped.
func (s *Sampler) servers(ctx context.Context, conns []psnet.ConnectionStat) []types.Server {
	var ips []string
	seen := make(map[string]bool)
	for _, c := range conns {
		ip := c.Raddr.IP
		if ip == "" || seen[ip] {
			continue
		}
		seen[ip] = true
		ips = append(ips, ip)
	}
	if len(ips) == 0 {
		return nil
	}

	hosts := s.resolveAll(ctx, ips)
	var servers []types.Server
	for _, c := range conns {
		host, ok := hosts[c.Raddr.IP]
		if !ok {
			continue
		}
		servers = append(servers, types.Server{IP: c.Raddr.IP, Port: c.Raddr.Port, Hostname: host})
	}
	return servers
}

func (s *Sampler) resolveAll(ctx context.Context, ips []string) map[string]string {
	now := s.now()
	resolved := make(map[string]string, len(ips))
	var pending []string

	s.cacheMu.Lock()
	for _, ip := range ips {
		if e, ok := s.hosts[ip]; ok && now.Before(e.expires) {
			if e.ok {
				resolved[ip] = e.host
			}
			continue
		}
		pending = append(pending, ip)
	}
	s.cacheMu.Unlock()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, ip := range pending {
		wg.Add(1)
		go func(ip string) {
			defer wg.Done()
			host, ok := s.lookup(ctx, ip)
			mu.Lock()
			if ok {
				resolved[ip] = host
			}
			mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			s.cacheMu.Lock()
			s.hosts[ip] = hostEntry{host: host, ok: ok, expires: now.Add(s.cacheTTL)}
			s.cacheMu.Unlock()
		}(ip)
	}
	wg.Wait()
	return resolved
}

func (s *Sampler) lookup(ctx context.Context, ip string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()
	names, err := s.resolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return "", false
	}
	host := strings.TrimSuffix(names[0], ".")
	return host, host != ""
}
