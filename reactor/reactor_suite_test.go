package reactor_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestReactor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "reactor suite")
}
