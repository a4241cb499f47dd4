// Command admind runs the AdminDispatcher front-end: an RPC listener
// accepting CREATE/DELETE/RELOAD/SYNCSHARD requests, paired with a
// coordinator loop that drains the overseer queue, in the spirit of
// cmd/server/main.go's flag-parse/start/wait-on-signal shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/rpc"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/epokhe/segidx/admin"
	"github.com/epokhe/segidx/overseer"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  admind -addr <listen-addr>\n")
	os.Exit(1)
}

// AdminRemote adapts admin.Dispatcher to net/rpc's single
// (args, reply) method shape, mirroring cmd/remote/remote.go's DBRemote
// wrapper around core.DB.
type AdminRemote struct {
	d *admin.Dispatcher
}

func (r *AdminRemote) Handle(req admin.Request, reply *map[string]string) error {
	resp, err := r.d.Handle(context.Background(), req)
	if err != nil {
		return err
	}
	*reply = resp
	return nil
}

func main() {
	addr := flag.String("addr", ":1730", "RPC listen address")
	zkTimeout := flag.Duration("zk-timeout", 60*time.Second, "coordinator response timeout")
	flag.Parse()

	if *addr == "" {
		usage()
	}

	queue := overseer.NewQueue(16)
	dispatcher := admin.NewDispatcher(admin.Config{ZKTimeout: *zkTimeout}, queue, nil, nil)

	server := rpc.NewServer()
	if err := server.RegisterName("Admin", &AdminRemote{d: dispatcher}); err != nil {
		log.Fatalf("could not register admin RPC service: %v", err)
	}

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("could not listen on %s: %v", *addr, err)
	}
	go server.Accept(listener)
	log.Printf("admin RPC server listening on %s", listener.Addr())

	stopCoordinator := make(chan struct{})
	go runCoordinator(queue, stopCoordinator)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received %v", sig)

	log.Println("Shutting down…")
	close(stopCoordinator)
	_ = listener.Close()
}

// runCoordinator plays the role of the ZooKeeper-watching coordinator in
// spec.md §4.7: it drains the overseer queue and acknowledges every
// request immediately. A real coordinator would apply the op to cluster
// state first; this one exists so admind is runnable standalone.
func runCoordinator(queue *overseer.Queue, stop <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-stop
		cancel()
	}()

	for {
		op, respond, err := queue.Next(ctx)
		if err != nil {
			return
		}
		log.Printf("coordinator: applying %s %v", op.Operation, op.Args)
		respond(overseer.Response{Payload: map[string]string{"applied": op.Operation}})
	}
}
