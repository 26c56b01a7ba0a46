package resilience_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	resilience "github.com/classpad/go-resilience"
)

var _ = Describe("HealthStatus", func() {
	It("marshals with snake_case keys for health endpoints", func() {
		health := resilience.HealthStatus{
			Healthy:              true,
			Status:               "closed",
			State:                "closed",
			Requests:             10,
			TotalSuccesses:       8,
			TotalFailures:        2,
			ConsecutiveFailures:  0,
			ConsecutiveSuccesses: 2,
		}

		data, err := json.Marshal(health)
		Expect(err).To(BeNil())

		var unmarshaled map[string]interface{}
		Expect(json.Unmarshal(data, &unmarshaled)).To(Succeed())
		Expect(unmarshaled["healthy"]).To(BeTrue())
		Expect(unmarshaled["status"]).To(Equal("closed"))
		Expect(unmarshaled["total_successes"]).To(BeNumerically("==", 8))
		Expect(unmarshaled["consecutive_failures"]).To(BeNumerically("==", 0))
	})
})
