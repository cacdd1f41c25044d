package sampler_test

import (
	"context"
	"errors"
	"os/exec"

	"github.com/healthmonitor/agent/models"
	. "github.com/healthmonitor/agent/monitor/sampler"

	"code.cloudfoundry.org/lager/v3/lagertest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const smiOutput = `0, NVIDIA A100-SXM4-40GB, 87, 30000, 40960, 66
1, Tesla T4, [N/A], 0, 15360, [Not Supported]
`

var _ = Describe("NvidiaSMI", func() {
	var (
		smi   *NvidiaSMI
		calls int
		args  []string
	)

	BeforeEach(func() {
		calls = 0
		smi = NewNvidiaSMI(lagertest.NewTestLogger("gpu"))
		smi.SetLookPath(func(string) (string, error) { return "/usr/bin/nvidia-smi", nil })
		smi.SetRun(func(_ context.Context, name string, a ...string) ([]byte, error) {
			calls++
			args = a
			Expect(name).To(Equal("/usr/bin/nvidia-smi"))
			return []byte(smiOutput), nil
		})
	})

	It("queries every gpu once per cycle", func() {
		stats, err := smi.GPUs(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(stats).To(HaveLen(2))
		Expect(args).To(ContainElement("--format=csv,noheader,nounits"))

		_, err = smi.GPUs(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(1))
	})

	It("is unavailable when the tool is not installed", func() {
		smi.SetLookPath(func(string) (string, error) { return "", exec.ErrNotFound })
		_, err := smi.GPUs(context.Background())
		Expect(err).To(MatchError(models.ErrSamplingUnavailable))
	})

	It("is unavailable when the driver does not answer", func() {
		smi.SetRun(func(context.Context, string, ...string) ([]byte, error) {
			return nil, errors.New("exit status 9: NVIDIA-SMI has failed because it couldn't communicate with the NVIDIA driver")
		})
		_, err := smi.GPUs(context.Background())
		Expect(err).To(MatchError(models.ErrSamplingUnavailable))
	})

	It("fails hard on output it cannot read", func() {
		smi.SetRun(func(context.Context, string, ...string) ([]byte, error) {
			return []byte("0, A100, lots, 1, 2, 3\n"), nil
		})
		_, err := smi.GPUs(context.Background())
		Expect(err).To(MatchError(models.ErrSamplerFailed))
	})

	Describe("ParseNvidiaSMI", func() {
		It("leaves unsupported fields empty", func() {
			stats, err := ParseNvidiaSMI([]byte(smiOutput))
			Expect(err).NotTo(HaveOccurred())
			Expect(stats[0].Name).To(Equal("NVIDIA A100-SXM4-40GB"))
			Expect(*stats[0].Temperature).To(Equal(66.0))
			Expect(stats[1].Utilization).To(BeNil())
			Expect(stats[1].Temperature).To(BeNil())
			Expect(*stats[1].MemoryTotalMiB).To(Equal(15360.0))
		})

		It("rejects rows with the wrong number of fields", func() {
			_, err := ParseNvidiaSMI([]byte("0, A100, 1\n"))
			Expect(err).To(MatchError(ContainSubstring("failed to parse nvidia-smi output")))
		})

		It("accepts empty output", func() {
			stats, err := ParseNvidiaSMI(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats).To(BeEmpty())
		})
	})
})
