package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/forkyhq/forky/pkg/config"
)

var _ = Describe("Configer", func() {
	var (
		dir    string
		cfger  *config.Configer
		newErr error
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		cfger, newErr = config.NewConfiger(dir)
		Expect(newErr).NotTo(HaveOccurred())
	})

	Describe("LoadConfig", func() {
		It("returns defaults when no config file exists", func() {
			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Storage.Driver).To(Equal("sqlite"))
			Expect(cfg.API.Listen).To(Equal(":8080"))
			Expect(cfg.Client.APITarget).To(Equal("http://localhost:8080"))
			Expect(cfg.Model.Provider).To(Equal("ollama"))
			Expect(cfg.Events.Provider).To(Equal("nop"))
		})

		It("fills unset fields from defaults", func() {
			raw := []byte("[model]\nprovider = \"openai\"\nmodel = \"gpt-4o-mini\"\n")
			Expect(os.WriteFile(filepath.Join(dir, "config.toml"), raw, 0o600)).To(Succeed())

			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Model.Provider).To(Equal("openai"))
			Expect(cfg.Model.Model).To(Equal("gpt-4o-mini"))
			// Untouched sections fall back to defaults.
			Expect(cfg.Storage.Driver).To(Equal("sqlite"))
			Expect(cfg.API.Listen).To(Equal(":8080"))
		})
	})

	Describe("SaveConfig", func() {
		It("round-trips the full configuration", func() {
			cfg := config.NewDefaultConfig()
			cfg.Storage.Driver = "postgres"
			cfg.Storage.PostgresDSN = "postgres://localhost/forky"
			cfg.Model.APIKey = "sk-test"
			cfg.Events.Provider = "kafka"
			cfg.Events.Brokers = []string{"broker-1:9092", "broker-2:9092"}

			Expect(cfger.SaveConfig(cfg)).To(Succeed())

			loaded, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("writes the file with owner-only permissions", func() {
			Expect(cfger.SaveConfig(config.NewDefaultConfig())).To(Succeed())

			info, err := os.Stat(cfger.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("rejects a nil config", func() {
			Expect(cfger.SaveConfig(nil)).NotTo(Succeed())
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		It("sets and reads back a scalar key", func() {
			Expect(cfger.SetConfigValue("api.listen", ":9999")).To(Succeed())

			got, err := cfger.GetConfigValue("api.listen")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(":9999"))
		})

		It("splits and joins the broker list", func() {
			Expect(cfger.SetConfigValue("events.brokers", "a:9092, b:9092 ,")).To(Succeed())

			got, err := cfger.GetConfigValue("events.brokers")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("a:9092,b:9092"))

			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Events.Brokers).To(Equal([]string{"a:9092", "b:9092"}))
		})

		It("rejects unknown keys", func() {
			Expect(cfger.SetConfigValue("nope.nothing", "x")).NotTo(Succeed())

			_, err := cfger.GetConfigValue("nope.nothing")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ValidConfigKeys", func() {
		It("covers every key the getters and setters know", func() {
			keys := config.ValidConfigKeys()
			Expect(keys).NotTo(BeEmpty())
			for _, k := range keys {
				Expect(config.IsValidConfigKey(k)).To(BeTrue(), "key %q", k)
			}
		})
	})
})

var _ = Describe("ParseConfigTOML", func() {
	It("parses a sectioned document", func() {
		cfg, err := config.ParseConfigTOML([]byte(`
version = 0

[storage]
driver = "inmemory"

[events]
provider = "kafka"
brokers = ["k1:9092"]
topic = "custom.topic"
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Storage.Driver).To(Equal("inmemory"))
		Expect(cfg.Events.Brokers).To(Equal([]string{"k1:9092"}))
		Expect(cfg.Events.Topic).To(Equal("custom.topic"))
	})

	It("rejects unsupported versions", func() {
		_, err := config.ParseConfigTOML([]byte("version = 99\n"))
		Expect(err).To(MatchError(ContainSubstring("unsupported config version")))
	})

	It("rejects malformed TOML", func() {
		_, err := config.ParseConfigTOML([]byte("not valid = = toml"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("PresetConfig", func() {
	It("fills the model section for each known preset", func() {
		for _, name := range config.ValidPresetNames() {
			cfg, err := config.PresetConfig(name)
			Expect(err).NotTo(HaveOccurred(), "preset %q", name)
			Expect(cfg.Model.Provider).To(Equal(name))
			Expect(cfg.Model.Model).NotTo(BeEmpty())
			Expect(cfg.Model.BaseURL).NotTo(BeEmpty())
		}
	})

	It("is case-insensitive", func() {
		cfg, err := config.PresetConfig("OpenAI")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Model.Provider).To(Equal("openai"))
	})

	It("rejects unknown presets", func() {
		_, err := config.PresetConfig("mystery")
		Expect(err).To(MatchError(ContainSubstring("unknown preset")))
	})
})
