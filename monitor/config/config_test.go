package config_test

import (
	"time"

	. "github.com/healthmonitor/agent/monitor/config"
	"github.com/healthmonitor/agent/models"
	"github.com/healthmonitor/agent/testhelpers"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		conf    *Config
		err     error
		general string
		content string
		format  Format
	)

	BeforeEach(func() {
		general = "cpu_threshold = 80\nram_threshold = 90\ndisk_threshold = 20\ndisks = /, /data"
		format = FormatINI
	})

	JustBeforeEach(func() {
		if content == "" {
			content = testhelpers.INIConfig(general, 60, 30, 3600, testhelpers.DefaultSMTPSettings())
		}
		conf, err = Parse([]byte(content), format)
	})

	AfterEach(func() {
		content = ""
	})

	Context("with a complete ini document", func() {
		It("reads every section", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(conf.General.DeviceName).To(Equal("test-host"))
			Expect(conf.General.Disks).To(Equal([]string{"/", "/data"}))
			Expect(conf.Time.CheckFrequency).To(Equal(60 * time.Second))
			Expect(conf.Time.EmailRetryDelay).To(Equal(30 * time.Second))
			Expect(conf.Time.AlertCooldown).To(Equal(time.Hour))
			Expect(conf.Email.SMTP.Address()).To(Equal("127.0.0.1:2525"))
			Expect(conf.Email.SMTP.StartTLS).To(BeFalse())
			Expect(conf.Email.Recipient).To(Equal("ops@example.com"))
			Expect(conf.Email.From()).To(Equal("monitor@example.com"))
			Expect(conf.MaxRetries).To(Equal(models.MaxDispatchAttempts))
		})

		It("keeps only the configured thresholds", func() {
			Expect(conf.ConfiguredKinds()).To(Equal([]models.ResourceKind{models.ResourceCPU, models.ResourceRAM, models.ResourceDisk}))
			Expect(conf.Threshold(models.ResourceCPU)).To(Equal(models.NewThreshold(80)))
			Expect(conf.Threshold(models.ResourceGPUTemp).Present).To(BeFalse())
		})

		It("uses the default templates with %% unescaped", func() {
			Expect(conf.Email.SubjectTemplate).To(Equal("[Alert] {device_name} {resource_name} threshold exceeded"))
			Expect(conf.Email.BodyTemplate).To(Equal("Device: {device_name}, {resource_name}: usage is more than {threshold}%."))
		})

		It("maps kinds onto devices", func() {
			Expect(conf.Devices(models.ResourceCPU)).To(Equal([]string{"test-host"}))
			Expect(conf.Devices(models.ResourceDisk)).To(Equal([]string{"/", "/data"}))
			Expect(conf.Devices(models.ResourceGPUUtil)).To(BeNil())
		})

		It("defaults logging to json at info", func() {
			Expect(conf.GetLogging().Level).To(Equal("info"))
			Expect(conf.GetLogging().PlainTextSink).To(BeFalse())
		})
	})

	Context("when the disk threshold is set without disks", func() {
		BeforeEach(func() {
			general = "disk_threshold = 10"
		})

		It("monitors the root filesystem", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(conf.General.Disks).To(Equal([]string{"/"}))
		})
	})

	Context("when a threshold is opted out", func() {
		BeforeEach(func() {
			general = "cpu_threshold = 80\nram_threshold = off\ngpu_threshold = 100\ngpu_temp_threshold = off\ndisk_threshold = 0\ngpu_memory_threshold ="
		})

		It("treats it as absent", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(conf.ConfiguredKinds()).To(Equal([]models.ResourceKind{models.ResourceCPU}))
		})
	})

	Context("when the gpu temperature threshold is above 100", func() {
		BeforeEach(func() {
			general = "gpu_temp_threshold = 105"
		})

		It("keeps it, since temperatures have no ceiling", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(conf.ConfiguredKinds()).To(Equal([]models.ResourceKind{models.ResourceGPUTemp}))
			threshold := conf.Threshold(models.ResourceGPUTemp)
			Expect(threshold).To(Equal(models.NewThreshold(105)))
			Expect(threshold.Breached(models.ResourceGPUTemp, 110)).To(BeTrue())
			Expect(threshold.Breached(models.ResourceGPUTemp, 105)).To(BeFalse())
		})
	})

	Context("when no threshold is configured", func() {
		BeforeEach(func() {
			general = "ram_threshold = none"
		})

		It("fails", func() {
			Expect(err).To(MatchError(models.ErrConfigInvalid))
			Expect(err).To(MatchError(ContainSubstring("no resource threshold is configured")))
		})
	})

	Context("when a threshold is not numeric", func() {
		BeforeEach(func() {
			general = "cpu_threshold = high"
		})

		It("fails", func() {
			Expect(err).To(MatchError(models.ErrConfigInvalid))
			Expect(err).To(MatchError(ContainSubstring(`general.cpu_threshold: threshold is not numeric: "high"`)))
		})
	})

	Context("when the retry delay is above twelve hours", func() {
		BeforeEach(func() {
			content = testhelpers.INIConfig("cpu_threshold = 80", 60, 43201, 0, testhelpers.DefaultSMTPSettings())
		})

		It("fails", func() {
			Expect(err).To(MatchError(ContainSubstring("time.email_retry_delay must not exceed 43200 seconds")))
		})
	})

	Context("when the retry delay is exactly twelve hours", func() {
		BeforeEach(func() {
			content = testhelpers.INIConfig("cpu_threshold = 80", 0, 43200, 0, testhelpers.DefaultSMTPSettings())
		})

		It("is accepted", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(conf.Time.CheckFrequency).To(BeZero())
		})
	})

	Context("when a duration is negative", func() {
		BeforeEach(func() {
			content = testhelpers.INIConfig("cpu_threshold = 80", -1, 1, 0, testhelpers.DefaultSMTPSettings())
		})

		It("fails", func() {
			Expect(err).To(MatchError(ContainSubstring("time.check_frequency is less than 0")))
		})
	})

	Context("when the recipient is not an address", func() {
		BeforeEach(func() {
			content = testhelpers.INIConfig("cpu_threshold = 80", 60, 1, 0, testhelpers.SMTPSettings{Host: "127.0.0.1", Port: 25, Recipient: "ops"})
		})

		It("fails", func() {
			Expect(err).To(MatchError(ContainSubstring("Configuration error: email.recipient failed the 'email' check")))
		})
	})

	Context("when the smtp port is out of range", func() {
		BeforeEach(func() {
			content = testhelpers.INIConfig("cpu_threshold = 80", 60, 1, 0, testhelpers.SMTPSettings{Host: "127.0.0.1", Port: 0, Recipient: "ops@example.com"})
		})

		It("fails", func() {
			Expect(err).To(MatchError(ContainSubstring("Configuration error: email.smtp_port failed the 'min=1' check")))
		})
	})

	Context("when a required section is missing", func() {
		BeforeEach(func() {
			content = "[general]\ncpu_threshold = 80\n\n[time]\ncheck_frequency = 1\nemail_retry_delay = 1\nalert_cooldown_time = 0\n"
		})

		It("fails", func() {
			Expect(err).To(MatchError(ContainSubstring("section 'email' is missing")))
		})
	})

	Context("when a required option is missing", func() {
		BeforeEach(func() {
			content = "[general]\ncpu_threshold = 80\n\n[time]\ncheck_frequency = 1\nalert_cooldown_time = 0\n"
		})

		It("fails", func() {
			Expect(err).To(MatchError(ContainSubstring("option 'email_retry_delay' is missing in section 'time'")))
		})
	})

	Context("when the document is not ini", func() {
		BeforeEach(func() {
			content = "this is not a config file"
		})

		It("fails", func() {
			Expect(err).To(MatchError(models.ErrConfigInvalid))
		})
	})

	Context("with custom multi-line templates", func() {
		BeforeEach(func() {
			content = testhelpers.INIConfig("gpu_temp_threshold = 85", 60, 1, 0, testhelpers.DefaultSMTPSettings()) +
				"alert_subject_template = {resource_name} on {device_name}\n" +
				"alert_body_template = {resource_name} is at {value}\n    (limit {threshold}%%)\n"
		})

		It("joins continuation lines", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(conf.Email.SubjectTemplate).To(Equal("{resource_name} on {device_name}"))
			Expect(conf.Email.BodyTemplate).To(Equal("{resource_name} is at {value}\n(limit {threshold}%)"))
		})
	})

	Context("with a template continued over several indented lines", func() {
		BeforeEach(func() {
			content = testhelpers.INIConfig("cpu_threshold = 90", 60, 1, 0, testhelpers.DefaultSMTPSettings()) +
				"alert_body_template = Device:  {device_name}\n  {resource_name} is high\n      check {device}\n"
		})

		It("strips the indentation of every continuation line only", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(conf.Email.BodyTemplate).To(Equal("Device:  {device_name}\n{resource_name} is high\ncheck {device}"))
		})
	})

	Context("with a yaml document", func() {
		BeforeEach(func() {
			format = FormatYAML
			content = `
general:
  device_name: yaml-host
  cpu_threshold: 75.5
  disk_threshold: 15
  disks: ["/", "/var"]
  log_format: text
time:
  check_frequency: 5
  email_retry_delay: 10
  alert_cooldown_time: 0
email:
  smtp_server: smtp.example.com
  smtp_port: 465
  smtp_username: monitor@example.com
  smtp_password: hunter2
  recipient: ops@example.com
  sender: alerts@example.com
`
		})

		It("decodes into the same configuration", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(conf.General.DeviceName).To(Equal("yaml-host"))
			Expect(conf.Threshold(models.ResourceCPU)).To(Equal(models.NewThreshold(75.5)))
			Expect(conf.General.Disks).To(Equal([]string{"/", "/var"}))
			Expect(conf.Email.SMTP.Port).To(Equal(465))
			Expect(conf.Email.SMTP.StartTLS).To(BeTrue())
			Expect(conf.Email.SendTestEmail).To(BeTrue())
			Expect(conf.Email.From()).To(Equal("alerts@example.com"))
			Expect(conf.GetLogging().PlainTextSink).To(BeTrue())
		})
	})

	DescribeTable("FormatForPath",
		func(path string, expected Format) {
			Expect(FormatForPath(path)).To(Equal(expected))
		},
		Entry("ini", "config/config.ini", FormatINI),
		Entry("yml", "/etc/monitor.yml", FormatYAML),
		Entry("YAML", "/etc/monitor.YAML", FormatYAML),
		Entry("no extension", "config", FormatINI),
	)

	DescribeTable("ParseThreshold",
		func(kind models.ResourceKind, value string, expected models.Threshold) {
			t, err := ParseThreshold(kind, value)
			Expect(err).NotTo(HaveOccurred())
			Expect(t).To(Equal(expected))
		},
		Entry("usage", models.ResourceCPU, "80", models.NewThreshold(80)),
		Entry("percent sign", models.ResourceRAM, "90%", models.NewThreshold(90)),
		Entry("usage at maximum", models.ResourceGPUUtil, "100", models.NoThreshold),
		Entry("temperature at 100", models.ResourceGPUTemp, "100", models.NewThreshold(100)),
		Entry("temperature above 100", models.ResourceGPUTemp, "120", models.NewThreshold(120)),
		Entry("temperature opted out", models.ResourceGPUTemp, "none", models.NoThreshold),
		Entry("disk at zero", models.ResourceDisk, "0", models.NoThreshold),
		Entry("disk positive", models.ResourceDisk, "12.5", models.NewThreshold(12.5)),
		Entry("disabled keyword", models.ResourceCPU, "Disabled", models.NoThreshold),
		Entry("empty", models.ResourceCPU, "  ", models.NoThreshold),
	)
})
