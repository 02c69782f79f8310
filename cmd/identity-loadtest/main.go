// Command identity-loadtest measures VerifyToken, RefreshToken and Authorize
// throughput against a seeded in-memory user population.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type userState struct {
	access  string
	refresh string
	claims  *goIdentity.Claims
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		revocation  = flag.Bool("revocation", true, "check the denylist on every verify")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, store, err := buildEngine(client, *revocation)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	states, err := seed(ctx, engine, store, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runPhase(states, *ops, *concurrency, 7919, func(s *userState) error {
		_, err := engine.VerifyToken(ctx, s.access)
		return err
	})
	authorizeStats := runPhase(states, *ops, *concurrency, 104729, func(s *userState) error {
		target := permission.Target{UserID: "peer", Department: s.claims.Department, Team: s.claims.Team}
		return engine.Authorize(s.claims, "read", "employee", target)
	})
	refreshStats := runPhase(states, *ops, *concurrency, 6151, func(s *userState) error {
		_, err := engine.RefreshToken(ctx, s.refresh)
		return err
	})

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("authorize", authorizeStats)
	printStats("refresh", refreshStats)
}

func buildEngine(client redis.UniversalClient, revocation bool) (*goIdentity.Engine, *memory.Store, error) {
	roles, err := permission.NewConfig(permission.Definition{
		Resources:   map[string]string{"employee": "hr"},
		DefaultRole: "employee",
		Roles: []permission.Role{
			{
				ID: "manager", Name: "Manager", Level: 50, Modules: []string{"hr"},
				Permissions: []permission.Permission{
					{Action: "read", Resource: "employee", Scope: permission.ScopeDepartment},
				},
			},
			{
				ID: "employee", Name: "Employee", Level: 10, Modules: []string{"hr"},
				Permissions: []permission.Permission{
					{Action: "read", Resource: "employee", Scope: permission.ScopeOwn},
				},
			},
		},
	})
	if err != nil {
		return nil, nil, err
	}

	cfg := goIdentity.DefaultConfig()
	cfg.JWT.AccessKey = []byte("loadtest-access-secret-0123456789")
	cfg.JWT.RefreshKey = []byte("loadtest-refresh-secret-012345678")
	cfg.Revocation.Enabled = revocation
	cfg.Metrics.Enabled = true

	store := memory.New()
	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithRedis(client).
		WithRoles(roles).
		WithCredentialStore(store).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return engine, store, nil
}

func seed(ctx context.Context, engine *goIdentity.Engine, store *memory.Store, n int) ([]userState, error) {
	states := make([]userState, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		role := "employee"
		if i%10 == 0 {
			role = "manager"
		}
		u := &goIdentity.User{
			ID:          fmt.Sprintf("user-%d", i),
			Username:    fmt.Sprintf("user%d", i),
			DisplayName: fmt.Sprintf("User %d", i),
			RoleID:      role,
			Department:  fmt.Sprintf("dept-%d", i%8),
			Team:        fmt.Sprintf("team-%d", i%32),
			Active:      true,
			CreatedAt:   now,
		}
		if err := store.CreateUser(ctx, u); err != nil {
			return nil, err
		}
		pair, err := engine.IssueTokens(ctx, goIdentity.Identity{
			ID:         u.ID,
			Username:   u.Username,
			RoleID:     u.RoleID,
			Department: u.Department,
			Team:       u.Team,
			Active:     true,
		})
		if err != nil {
			return nil, err
		}
		claims, err := engine.VerifyToken(ctx, pair.AccessToken)
		if err != nil {
			return nil, err
		}
		states[i] = userState{access: pair.AccessToken, refresh: pair.RefreshToken, claims: claims}
	}
	return states, nil
}

func runPhase(states []userState, ops, concurrency int, seedSalt int64, op func(*userState) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seedSalt))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(states))
				t0 := time.Now()
				err := op(&states[idx])
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
