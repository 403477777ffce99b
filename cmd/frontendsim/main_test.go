// Package main provides tests for the frontendsim CLI's trace-driven run.
package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/frontendsim/config"
	"github.com/sarchlab/frontendsim/frontend"
)

func TestMain(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Main Suite")
}

var _ = Describe("loadTrace", func() {
	It("parses a JSON trace file into TraceEntry records", func() {
		entries := []frontend.TraceEntry{
			{PC: 0x1000, InstSize: 4, NextPC: 0x1004},
			{PC: 0x1004, InstSize: 4, Exit: true, NextPC: 0x1008},
		}
		data, err := json.Marshal(entries)
		Expect(err).NotTo(HaveOccurred())

		path := filepath.Join(os.TempDir(), "frontendsim_trace_test.json")
		Expect(os.WriteFile(path, data, 0644)).NotTo(HaveOccurred())
		defer os.Remove(path)

		loaded, err := loadTrace(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(HaveLen(2))
		Expect(loaded[1].Exit).To(BeTrue())
	})
})

var _ = Describe("run", func() {
	It("completes and returns exit code 0 for a short straight-line trace", func() {
		entries := []frontend.TraceEntry{
			{PC: 0x1000, InstSize: 4, NextPC: 0x1004},
			{PC: 0x1004, InstSize: 4, Exit: true, NextPC: 0x1008},
		}
		code := run(config.Default(), entries)
		Expect(code).To(Equal(0))
	})
})
