package resilience_test

import (
	"context"
	"errors"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	pkgerrors "github.com/JohnPlummer/jp-go-errors"
	resilience "github.com/classpad/go-resilience"
)

var _ = Describe("IsRetryableError", func() {
	Context("explicit retryable flags", func() {
		It("honors a true override even without a status", func() {
			err := resilience.Retryable(errors.New("weird but transient"), true)
			Expect(resilience.IsRetryableError(err)).To(BeTrue())
		})

		It("honors a false override over a retryable status", func() {
			wrapped := resilience.NewStatusCodeError(503, errors.New("service unavailable"))
			err := resilience.Retryable(wrapped, false)
			Expect(resilience.IsRetryableError(err)).To(BeFalse())
		})

		It("honors a true override over a non-retryable status", func() {
			wrapped := resilience.NewStatusCodeError(404, errors.New("not found"))
			err := resilience.Retryable(wrapped, true)
			Expect(resilience.IsRetryableError(err)).To(BeTrue())
		})

		It("honors NetworkError.Retryable directly", func() {
			no := false
			err := &resilience.NetworkError{
				Message:        "connection reset",
				NetworkFailure: true,
				Retryable:      &no,
			}
			Expect(resilience.IsRetryableError(err)).To(BeFalse())
		})
	})

	Context("HTTP status codes", func() {
		It("returns true for transient statuses regardless of message", func() {
			for _, status := range []int{408, 429, 500, 502, 503, 504} {
				err := resilience.NewStatusCodeError(status, errors.New("anything at all"))
				Expect(resilience.IsRetryableError(err)).To(BeTrue(), "status %d", status)
			}
		})

		It("returns false for client-error statuses regardless of message", func() {
			for _, status := range []int{400, 401, 403, 404} {
				err := resilience.NewStatusCodeError(status, errors.New("fetch failed timeout"))
				Expect(resilience.IsRetryableError(err)).To(BeFalse(), "status %d", status)
			}
		})

		It("reads the status from a NetworkError", func() {
			err := &resilience.NetworkError{Message: "bad gateway", Status: 502}
			Expect(resilience.IsRetryableError(err)).To(BeTrue())

			err = &resilience.NetworkError{Message: "forbidden", Status: 403}
			Expect(resilience.IsRetryableError(err)).To(BeFalse())
		})
	})

	Context("transport failures and timeouts", func() {
		It("retries transport-level NetworkErrors with no status", func() {
			err := &resilience.NetworkError{Message: "fetch failed", NetworkFailure: true}
			Expect(resilience.IsRetryableError(err)).To(BeTrue())
		})

		It("retries net package errors", func() {
			err := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
			Expect(resilience.IsRetryableError(err)).To(BeTrue())
		})

		It("retries timeout errors", func() {
			err := pkgerrors.NewTimeoutError("operation timeout", "send_message", 5*time.Second)
			Expect(resilience.IsRetryableError(err)).To(BeTrue())
		})

		It("retries attempt deadline expiry", func() {
			Expect(resilience.IsRetryableError(context.DeadlineExceeded)).To(BeTrue())
		})

		It("does not retry caller cancellation", func() {
			Expect(resilience.IsRetryableError(context.Canceled)).To(BeFalse())
		})

		It("retries rate limiting", func() {
			Expect(resilience.IsRetryableError(pkgerrors.ErrRateLimited)).To(BeTrue())
		})
	})

	Context("everything else", func() {
		It("does not retry generic application errors", func() {
			Expect(resilience.IsRetryableError(errors.New("validation failed"))).To(BeFalse())
		})

		It("does not retry nil", func() {
			Expect(resilience.IsRetryableError(nil)).To(BeFalse())
		})

		It("does not retry application NetworkErrors with no status", func() {
			err := &resilience.NetworkError{Message: "duplicate student id"}
			Expect(resilience.IsRetryableError(err)).To(BeFalse())
		})
	})
})

var _ = Describe("HTTPStatusClassifier", func() {
	It("supports custom retryable status sets", func() {
		classifier := &resilience.HTTPStatusClassifier{
			RetryableStatuses: []int{418},
		}
		Expect(classifier.IsRetryable(resilience.NewStatusCodeError(418, errors.New("teapot")))).To(BeTrue())
		Expect(classifier.IsRetryable(resilience.NewStatusCodeError(503, errors.New("unavailable")))).To(BeFalse())
	})

	Describe("ShouldTripCircuit", func() {
		var classifier *resilience.HTTPStatusClassifier

		BeforeEach(func() {
			classifier = resilience.NewHTTPStatusClassifier()
		})

		It("trips on auth and server errors", func() {
			for _, status := range []int{401, 403, 500, 502, 503, 504} {
				err := resilience.NewStatusCodeError(status, errors.New("boom"))
				Expect(classifier.ShouldTripCircuit(err)).To(BeTrue(), "status %d", status)
			}
		})

		It("does not trip on rate limits or timeouts", func() {
			Expect(classifier.ShouldTripCircuit(pkgerrors.ErrRateLimited)).To(BeFalse())
			Expect(classifier.ShouldTripCircuit(context.DeadlineExceeded)).To(BeFalse())
		})

		It("trips on unknown errors", func() {
			Expect(classifier.ShouldTripCircuit(errors.New("totally unknown"))).To(BeTrue())
		})

		It("does not trip on nil", func() {
			Expect(classifier.ShouldTripCircuit(nil)).To(BeFalse())
		})
	})
})
