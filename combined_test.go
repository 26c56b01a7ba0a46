package resilience_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	resilience "github.com/classpad/go-resilience"
)

var _ = Describe("CombineRetryAndCircuitBreaker", func() {
	var (
		client *mockCircuitBreakerClient
		ctx    context.Context
		logger *slog.Logger
	)

	BeforeEach(func() {
		client = &mockCircuitBreakerClient{
			executeFunc: func(ctx context.Context, req string) (string, error) {
				return "success", nil
			},
		}
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError, // Quiet during tests
		}))
	})

	newCombined := func(maxAttempts, failureThreshold int) resilience.ResilientClient[string, string] {
		return resilience.CombineRetryAndCircuitBreaker(
			client,
			[]resilience.RetryOption{
				resilience.WithMaxAttempts(maxAttempts),
				resilience.WithExponentialBackoff(time.Millisecond, 10*time.Millisecond),
				resilience.WithoutJitter(),
			},
			[]resilience.CircuitBreakerOption{
				resilience.WithFailureThreshold(failureThreshold),
				resilience.WithResetTimeout(100 * time.Millisecond),
				resilience.WithSuccessThreshold(1),
			},
			logger,
		)
	}

	It("passes successful requests straight through", func() {
		combined := newCombined(3, 2)

		resp, err := combined.Execute(ctx, "test")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp).To(Equal("success"))
		Expect(client.getCallCount()).To(Equal(1))
	})

	It("counts one breaker failure per exhausted retry sequence", func() {
		combined := newCombined(2, 2)

		client.executeFunc = func(ctx context.Context, req string) (string, error) {
			return "", resilience.NewStatusCodeError(503, errors.New("service unavailable"))
		}

		// First call: 2 attempts, then the breaker records failure #1.
		_, err := combined.Execute(ctx, "test")
		Expect(err).To(HaveOccurred())
		Expect(resilience.IsCircuitOpen(err)).To(BeFalse())
		Expect(client.getCallCount()).To(Equal(2))

		// Second call: 2 more attempts, failure #2 opens the circuit.
		_, err = combined.Execute(ctx, "test")
		Expect(err).To(HaveOccurred())
		Expect(client.getCallCount()).To(Equal(4))

		// Third call: rejected by the breaker, no retries burned at all.
		_, err = combined.Execute(ctx, "test")
		Expect(errors.Is(err, resilience.ErrOpenState)).To(BeTrue())
		Expect(client.getCallCount()).To(Equal(4))
	})

	It("does not open the breaker on a non-retryable application error", func() {
		combined := newCombined(3, 2)

		client.executeFunc = func(ctx context.Context, req string) (string, error) {
			return "", resilience.NewStatusCodeError(404, errors.New("not found"))
		}

		// 404 neither retries nor trips: one attempt per call, circuit closed.
		for i := 0; i < 5; i++ {
			_, err := combined.Execute(ctx, "test")
			Expect(err).To(HaveOccurred())
			Expect(resilience.IsCircuitOpen(err)).To(BeFalse())
		}
		Expect(client.getCallCount()).To(Equal(5))
	})

	It("recovers end to end once the dependency comes back", func() {
		combined := newCombined(2, 1)

		client.executeFunc = func(ctx context.Context, req string) (string, error) {
			return "", resilience.NewStatusCodeError(503, errors.New("service unavailable"))
		}
		_, _ = combined.Execute(ctx, "test")

		_, err := combined.Execute(ctx, "test")
		Expect(errors.Is(err, resilience.ErrOpenState)).To(BeTrue())

		time.Sleep(150 * time.Millisecond)

		client.executeFunc = func(ctx context.Context, req string) (string, error) {
			return "success", nil
		}
		resp, err := combined.Execute(ctx, "test")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp).To(Equal("success"))
	})
})
