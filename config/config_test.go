package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/frontendsim/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Config", func() {
	It("validates the default configuration", func() {
		Expect(config.Default().Validate()).NotTo(HaveOccurred())
	})

	It("rejects a zero FTQ capacity", func() {
		c := config.Default()
		c.FTQCapacity = 0
		Expect(c.Validate()).To(HaveOccurred())
	})

	It("rejects an unrecognized replacement policy", func() {
		c := config.Default()
		c.UopCacheReplacement = "bogus"
		Expect(c.Validate()).To(HaveOccurred())
	})

	It("round-trips through Save/Load", func() {
		dir := os.TempDir()
		path := filepath.Join(dir, "frontendsim_config_test.json")
		defer os.Remove(path)

		c := config.Default()
		c.BTBSize = 512
		Expect(c.Save(path)).NotTo(HaveOccurred())

		loaded, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.BTBSize).To(Equal(uint32(512)))
	})

	It("Clone returns an independent copy", func() {
		c := config.Default()
		clone := c.Clone()
		clone.BTBSize = 1
		Expect(c.BTBSize).NotTo(Equal(clone.BTBSize))
	})
})
