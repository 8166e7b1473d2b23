package sshplatform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vk/chunkgrid/internal/remote"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// runner executes one shell command on the remote host.
type runner interface {
	Run(ctx context.Context, cmd string, stdin io.Reader) (string, error)
	Close() error
}

// sshRunner keeps one SSH connection open and runs every command in a new
// session on it. A broken connection is redialled on the next command.
type sshRunner struct {
	addr   string
	config *ssh.ClientConfig

	mu     sync.Mutex
	client *ssh.Client
}

func newSSHRunner(cfg Config) (*sshRunner, error) {
	key, err := os.ReadFile(cfg.IdentityFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading identity file: %w", remote.ErrFatal, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing identity file %s: %w", remote.ErrFatal, cfg.IdentityFile, err)
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		hostKey, err = knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("%w: loading known hosts: %w", remote.ErrFatal, err)
		}
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	return &sshRunner{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		config: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKey,
			Timeout:         30 * time.Second,
		},
	}, nil
}

func (r *sshRunner) connect() (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}
	client, err := ssh.Dial("tcp", r.addr, r.config)
	if err != nil {
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: connecting to %s: %w", remote.ErrFatal, r.addr, err)
		}
		return nil, fmt.Errorf("%w: connecting to %s: %w", remote.ErrTransient, r.addr, err)
	}
	r.client = client
	return client, nil
}

// drop forgets a connection that stopped working.
func (r *sshRunner) drop(c *ssh.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == c {
		r.client.Close()
		r.client = nil
	}
}

func (r *sshRunner) Run(ctx context.Context, cmd string, stdin io.Reader) (string, error) {
	client, err := r.connect()
	if err != nil {
		return "", err
	}
	sess, err := client.NewSession()
	if err != nil {
		r.drop(client)
		return "", fmt.Errorf("%w: opening session: %w", remote.ErrTransient, err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	if stdin != nil {
		sess.Stdin = stdin
	}

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return "", fmt.Errorf("%w: %q: %w", remote.ErrTransient, cmd, ctx.Err())
	case err := <-done:
		if err != nil {
			return stdout.String(), fmt.Errorf("%w: %q: %w: %s", remote.ErrTransient, cmd, err, strings.TrimSpace(stderr.String()))
		}
	}
	return stdout.String(), nil
}

func (r *sshRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}
