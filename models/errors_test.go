package models_test

import (
	"errors"
	"fmt"

	"github.com/healthmonitor/agent/models"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Errors", func() {
	Describe("PermanentDeliveryError", func() {
		var cause = errors.New("535 5.7.8 bad credentials")

		It("is detected through wrapping", func() {
			err := fmt.Errorf("send: %w", models.NewPermanentDeliveryError("authentication rejected", cause))
			Expect(models.IsPermanentDelivery(err)).To(BeTrue())
			Expect(errors.Is(err, cause)).To(BeTrue())
			Expect(err.Error()).To(Equal("send: authentication rejected: 535 5.7.8 bad credentials"))
		})

		It("is not reported for ordinary errors", func() {
			Expect(models.IsPermanentDelivery(cause)).To(BeFalse())
		})
	})

	Describe("SamplingUnavailable", func() {
		It("wraps both the sentinel and the cause", func() {
			cause := errors.New("nvidia-smi not found")
			err := models.SamplingUnavailable(models.ResourceGPUTemp, "", cause)
			Expect(errors.Is(err, models.ErrSamplingUnavailable)).To(BeTrue())
			Expect(errors.Is(err, cause)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("gpu_temp"))
		})

		It("names the device when there is one", func() {
			err := models.SamplingUnavailable(models.ResourceDisk, "/data", errors.New("no such file"))
			Expect(err.Error()).To(Equal("sampling unavailable: disk /data: no such file"))
		})
	})
})
