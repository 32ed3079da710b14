package transport

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"net/rpc"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// CountsArgs/CountsReply and PartsArgs/PartsReply are the RPC payloads for
// the two Transport operations. They are exported, as net/rpc requires,
// but are not meant to be constructed outside this package.

// CountsArgs carries the calling rank's send counts, indexed by
// destination rank.
type CountsArgs struct {
	From   int
	Counts []int
}

// CountsReply carries this round's recvCounts for the rank that was
// called, i.e. what the caller's peer already knows it will receive from
// every rank once all have submitted.
type CountsReply struct {
	Counts []int
}

// PartsArgs carries the calling rank's outgoing particles for one
// destination rank.
type PartsArgs struct {
	From      int
	To        int
	Particles []Particle
}

// PartsReply is empty; particles addressed to a rank arrive via calls made
// TO that rank's own RPC endpoint, not as a reply.
type PartsReply struct{}

// endpoint is the RPC-registered receiver living on each rank's HTTP
// listener. It accumulates what peers have sent it for the round currently
// in flight and releases every waiting Submit call once every peer
// (including itself) has reported in; RPC.ExchangeParticles then takes this
// rank's inbox with drain.
type endpoint struct {
	mu sync.Mutex

	n    int
	rank int

	countsGen  int
	countsIn   [][]int
	countsDone int
	countsWake chan struct{}

	partsGen  int
	partsIn   [][]Particle
	partsDone int
	partsWake chan struct{}
}

// SubmitCounts is registered for RPC under "Endpoint.SubmitCounts".
func (e *endpoint) SubmitCounts(args *CountsArgs, reply *CountsReply) error {
	e.mu.Lock()
	gen := e.countsGen
	if e.countsIn == nil {
		e.countsIn = make([][]int, e.n)
	}
	e.countsIn[args.From] = args.Counts
	e.countsDone++
	if e.countsDone == e.n {
		e.countsDone = 0
		e.countsGen++
		close(e.countsWake)
		e.countsWake = make(chan struct{})
	}
	e.mu.Unlock()

	for {
		e.mu.Lock()
		done := e.countsGen != gen
		w := e.countsWake
		e.mu.Unlock()
		if done {
			break
		}
		<-w
	}

	e.mu.Lock()
	reply.Counts = make([]int, e.n)
	for sender := 0; sender < e.n; sender++ {
		if len(e.countsIn[sender]) > e.rank {
			reply.Counts[sender] = e.countsIn[sender][e.rank]
		}
	}
	e.mu.Unlock()
	return nil
}

// SubmitParticles is registered for RPC under "Endpoint.SubmitParticles".
// Every rank submits to this endpoint exactly once per round (including a
// loopback submission to itself), so the call barriers the same way
// SubmitCounts does: it does not return until every rank's submission for
// the round has landed, which guarantees the caller's own inbox is
// complete by the time its own round-closing call returns.
func (e *endpoint) SubmitParticles(args *PartsArgs, reply *PartsReply) error {
	e.mu.Lock()
	gen := e.partsGen
	if e.partsIn == nil {
		e.partsIn = make([][]Particle, e.n)
	}
	e.partsIn[args.To] = append(e.partsIn[args.To], args.Particles...)
	e.partsDone++
	if e.partsDone == e.n {
		e.partsDone = 0
		e.partsGen++
		close(e.partsWake)
		e.partsWake = make(chan struct{})
	}
	e.mu.Unlock()

	for {
		e.mu.Lock()
		done := e.partsGen != gen
		w := e.partsWake
		e.mu.Unlock()
		if done {
			break
		}
		<-w
	}
	return nil
}

// drain empties and returns everything addressed to this endpoint's own
// rank for the round, resetting state for the next one.
func (e *endpoint) drain(rank int) []Particle {
	e.mu.Lock()
	defer e.mu.Unlock()
	recv := e.partsIn[rank]
	e.partsIn = make([][]Particle, e.n)
	return recv
}

// RPC is a net/rpc-over-HTTP Transport, modeled on sr.Worker /
// sr.WorkerListen / sr.Cluster: each rank both serves an RPC endpoint
// (WorkerListen's role) and holds one persistent client connection per
// peer (Cluster.NewWorker's role), dialed once at construction and reused
// for every round. A failed dial is retried with exponential backoff,
// since a peer may simply not have started its listener yet; a failure
// that happens mid-round, after a connection is established, is never
// retried here and is surfaced as an Error for the engine to treat as
// fatal (§7).
type RPC struct {
	rank int
	n    int
	ep   *endpoint

	mu      sync.Mutex
	clients []*rpc.Client // one per peer rank, nil until first successful dial
	addrs   []string
}

// ListenAndServe starts this rank's RPC endpoint on addr (host:port) and
// returns once it is accepting connections. It must be called before any
// peer dials in.
func ListenAndServe(rank, n int, addr string) (*RPC, error) {
	ep := &endpoint{n: n, rank: rank, countsWake: make(chan struct{}), partsWake: make(chan struct{}), partsIn: make([][]Particle, n)}
	server := rpc.NewServer()
	if err := server.RegisterName("Endpoint", ep); err != nil {
		return nil, fmt.Errorf("flowroute/transport: registering rpc endpoint: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle(rpc.DefaultRPCPath, server)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("flowroute/transport: listening on %s: %v", addr, err)
	}
	go func() {
		log.Printf("flowroute: rank %d rpc endpoint listening on %s", rank, addr)
		if err := http.Serve(l, mux); err != nil {
			log.Printf("flowroute: rank %d rpc endpoint stopped: %v", rank, err)
		}
	}()
	return &RPC{rank: rank, n: n, ep: ep, clients: make([]*rpc.Client, n), addrs: make([]string, n)}, nil
}

// DialPeer registers the address for peer rank and establishes (with
// retry) the persistent connection used for every subsequent round. It
// must be called once for every peer, including a loopback dial to this
// rank's own address, before the first Exchange call.
func (t *RPC) DialPeer(peer int, addr string) error {
	t.addrs[peer] = addr
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	var client *rpc.Client
	err := backoff.RetryNotify(func() error {
		c, err := rpc.DialHTTP("tcp", addr)
		if err != nil {
			return err
		}
		client = c
		return nil
	}, b, func(err error, wait time.Duration) {
		log.Printf("flowroute: dialing peer %d (%s) failed, retrying in %v: %v", peer, addr, wait, err)
	})
	if err != nil {
		return &Error{Cause: fmt.Errorf("dialing peer %d at %s: %w", peer, addr, err)}
	}
	t.mu.Lock()
	t.clients[peer] = client
	t.mu.Unlock()
	return nil
}

// ExchangeCounts implements Transport by calling every peer's
// Endpoint.SubmitCounts, including its own, and returning the reply each
// peer computes once all ranks have reported in for the round.
func (t *RPC) ExchangeCounts(sendCounts []int) ([]int, error) {
	args := &CountsArgs{From: t.rank, Counts: sendCounts}
	var reply CountsReply
	t.mu.Lock()
	self := t.clients[t.rank]
	t.mu.Unlock()
	if self == nil {
		return nil, &Error{Cause: fmt.Errorf("no client dialed for own rank %d", t.rank)}
	}
	if err := self.Call("Endpoint.SubmitCounts", args, &reply); err != nil {
		return nil, &Error{Cause: err}
	}
	return reply.Counts, nil
}

// ExchangeParticles implements Transport by sending each destination
// bucket to its owning peer's endpoint, then draining whatever has
// accumulated in this rank's own endpoint for the round. send always
// includes a (possibly empty) entry for this rank's own index, so the
// self-addressed SubmitParticles call barriers on every peer's submission
// for the round; once wg.Wait() returns, this rank's own inbox is
// guaranteed complete and safe to drain (§5).
func (t *RPC) ExchangeParticles(send [][]Particle) ([]Particle, error) {
	var wg sync.WaitGroup
	errs := make([]error, len(send))
	for dest, bucket := range send {
		t.mu.Lock()
		client := t.clients[dest]
		t.mu.Unlock()
		if client == nil {
			return nil, &Error{Cause: fmt.Errorf("no client dialed for peer %d", dest)}
		}
		wg.Add(1)
		go func(dest int, bucket []Particle, client *rpc.Client) {
			defer wg.Done()
			args := &PartsArgs{From: t.rank, To: dest, Particles: bucket}
			var reply PartsReply
			if err := client.Call("Endpoint.SubmitParticles", args, &reply); err != nil {
				errs[dest] = err
			}
		}(dest, bucket, client)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, &Error{Cause: err}
		}
	}
	return t.ep.drain(t.rank), nil
}
