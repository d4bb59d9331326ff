package webhook_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"revq.app/revq/internal/webhook"
)

// fakeDedupStore mimics redis SETNX semantics in memory, including the
// "only one of N concurrent callers wins" guarantee.
type fakeDedupStore struct {
	mu       sync.Mutex
	keys     map[string]time.Duration
	lastTTL  time.Duration
	failWith error
}

func newFakeDedupStore() *fakeDedupStore {
	return &fakeDedupStore{keys: make(map[string]time.Duration)}
}

func (f *fakeDedupStore) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return redis.NewBoolResult(false, f.failWith)
	}

	f.lastTTL = expiration
	if _, exists := f.keys[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = expiration
	return redis.NewBoolResult(true, nil)
}

var _ = Describe("Deduplicator", func() {
	var (
		store *fakeDedupStore
		dedup *webhook.Deduplicator
		ctx   context.Context
	)

	BeforeEach(func() {
		store = newFakeDedupStore()
		dedup = webhook.NewDeduplicator(store, time.Hour)
		ctx = context.Background()
	})

	It("reports a first-seen delivery as unseen", func() {
		seen, err := dedup.Seen(ctx, "delivery-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(seen).To(BeFalse())
	})

	It("reports a repeated delivery as seen", func() {
		_, err := dedup.Seen(ctx, "delivery-1")
		Expect(err).ToNot(HaveOccurred())

		seen, err := dedup.Seen(ctx, "delivery-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(seen).To(BeTrue())
	})

	It("tracks distinct delivery ids independently", func() {
		_, err := dedup.Seen(ctx, "delivery-1")
		Expect(err).ToNot(HaveOccurred())

		seen, err := dedup.Seen(ctx, "delivery-2")
		Expect(err).ToNot(HaveOccurred())
		Expect(seen).To(BeFalse())
	})

	It("sets the configured TTL on first sight", func() {
		_, err := dedup.Seen(ctx, "delivery-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(store.lastTTL).To(Equal(time.Hour))
	})

	It("defaults the TTL to one hour when unconfigured", func() {
		d := webhook.NewDeduplicator(store, 0)
		_, err := d.Seen(ctx, "delivery-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(store.lastTTL).To(Equal(time.Hour))
	})

	It("lets exactly one of many concurrent callers proceed", func() {
		const callers = 16
		var wg sync.WaitGroup
		unseen := make(chan struct{}, callers)

		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				seen, err := dedup.Seen(ctx, "contested")
				if err == nil && !seen {
					unseen <- struct{}{}
				}
			}()
		}
		wg.Wait()
		close(unseen)

		count := 0
		for range unseen {
			count++
		}
		Expect(count).To(Equal(1))
	})

	It("propagates store errors", func() {
		store.failWith = fmt.Errorf("connection refused")
		_, err := dedup.Seen(ctx, "delivery-1")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("delivery-1"))
	})
})
