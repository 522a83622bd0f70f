package etcd

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/dibs-shares/shares-server/pkg/lock"
)

// LockManager hands out locks backed by a single etcd session. The session
// lease is kept alive in the background, so locks are held until they're
// unlocked or the lease can no longer be renewed within the TTL.
type LockManager struct {
	log    *logrus.Entry
	client *v3.Client
	prefix string
	ttl    time.Duration

	mu      sync.Mutex
	session *concurrency.Session
}

func NewLockManager(client *v3.Client, prefix string, ttl time.Duration) *LockManager {
	return &LockManager{
		log:    logrus.StandardLogger().WithField("type", "etcd/LockManager"),
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Create implements lock.Manager.Create
func (lm *LockManager) Create(_ context.Context, name string) (lock.DistributedLock, error) {
	if len(name) == 0 {
		return nil, errors.New("lock name is required")
	}

	key := path.Join(lm.prefix, name)
	return &Lock{
		log: lm.log.WithFields(logrus.Fields{
			"type": "etcd/Lock",
			"key":  key,
		}),
		lm:  lm,
		key: key,
	}, nil
}

// Close ends the session. Every lock created by the manager is lost.
func (lm *LockManager) Close() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.session == nil {
		return nil
	}

	err := lm.session.Close()
	lm.session = nil
	return err
}

func (lm *LockManager) getSession() (*concurrency.Session, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.session != nil {
		select {
		case <-lm.session.Done():
			lm.log.Warn("etcd session expired, creating a new one")
			lm.session = nil
		default:
			return lm.session, nil
		}
	}

	ttl := int(lm.ttl / time.Second)
	if ttl < 1 {
		ttl = 1
	}

	session, err := concurrency.NewSession(
		lm.client,
		concurrency.WithTTL(ttl),
		concurrency.WithContext(v3.WithRequireLeader(context.Background())),
	)
	if err != nil {
		return nil, errors.Wrap(err, "error creating etcd session")
	}

	lm.session = session
	return session, nil
}

// Lock is a lock.DistributedLock backed by an etcd mutex
type Lock struct {
	log *logrus.Entry
	lm  *LockManager
	key string

	mu     sync.Mutex
	mutex  *concurrency.Mutex
	lostCh chan struct{}
	stopCh chan struct{}
}

// Acquire implements lock.DistributedLock.Acquire
func (l *Lock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mutex != nil {
		return l.lostCh, nil
	}

	session, err := l.lm.getSession()
	if err != nil {
		return nil, err
	}

	mutex := concurrency.NewMutex(session, l.key)
	if err := mutex.Lock(ctx); err != nil {
		return nil, errors.Wrap(err, "error acquiring etcd lock")
	}

	l.mutex = mutex
	l.lostCh = make(chan struct{})
	l.stopCh = make(chan struct{})

	go l.watch(ctx, session, l.lostCh, l.stopCh)

	return l.lostCh, nil
}

// Unlock implements lock.DistributedLock.Unlock
func (l *Lock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mutex == nil {
		return nil
	}

	close(l.stopCh)
	err := l.mutex.Unlock(ctx)
	l.mutex = nil
	if err != nil {
		return errors.Wrap(err, "error releasing etcd lock")
	}
	return nil
}

// IsLocked implements lock.DistributedLock.IsLocked
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mutex == nil {
		return false
	}

	select {
	case <-l.lostCh:
		return false
	default:
		return true
	}
}

func (l *Lock) watch(ctx context.Context, session *concurrency.Session, lostCh, stopCh chan struct{}) {
	defer close(lostCh)

	select {
	case <-session.Done():
		l.log.Warn("etcd session ended while holding lock")
	case <-ctx.Done():
	case <-stopCh:
	}
}
