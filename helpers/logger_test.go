package helpers_test

import (
	"os"
	"path/filepath"

	"github.com/healthmonitor/agent/helpers"

	"code.cloudfoundry.org/lager/v3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Logger", func() {
	DescribeTable("ParseLogLevel",
		func(name string, expected lager.LogLevel) {
			level, err := helpers.ParseLogLevel(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(level).To(Equal(expected))
		},
		Entry("debug", "debug", lager.DEBUG),
		Entry("info", "INFO", lager.INFO),
		Entry("warning", "warning", lager.INFO),
		Entry("error", "error", lager.ERROR),
		Entry("critical", "critical", lager.FATAL),
		Entry("fatal", " fatal ", lager.FATAL),
	)

	It("rejects unknown levels", func() {
		_, err := helpers.ParseLogLevel("verbose")
		Expect(err).To(MatchError("unsupported log level: verbose"))
	})

	Describe("InitLoggerFromConfig", func() {
		var logFile string

		BeforeEach(func() {
			logFile = filepath.Join(GinkgoT().TempDir(), "monitor.log")
		})

		It("copies entries at or above the level into the log file", func() {
			logger, sink, err := helpers.InitLoggerFromConfig(&helpers.LoggingConfig{Level: "info", File: logFile}, "healthmonitor")
			Expect(err).NotTo(HaveOccurred())

			logger.Debug("hidden")
			logger.Info("visible")
			Expect(sink.GetMinLevel()).To(Equal(lager.INFO))

			sink.SetMinLevel(lager.DEBUG)
			logger.Debug("now-visible")

			content, err := os.ReadFile(logFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(content)).To(ContainSubstring("healthmonitor.visible"))
			Expect(string(content)).To(ContainSubstring("healthmonitor.now-visible"))
			Expect(string(content)).NotTo(ContainSubstring("healthmonitor.hidden"))
		})

		It("fails on an unsupported level", func() {
			_, _, err := helpers.InitLoggerFromConfig(&helpers.LoggingConfig{Level: "loud"}, "healthmonitor")
			Expect(err).To(MatchError(ContainSubstring("unsupported log level: loud")))
		})

		It("fails when the log file cannot be opened", func() {
			_, _, err := helpers.InitLoggerFromConfig(&helpers.LoggingConfig{Level: "info", File: filepath.Join(logFile, "nested", "x.log")}, "healthmonitor")
			Expect(err).To(MatchError(ContainSubstring("failed to open log file")))
		})
	})
})
