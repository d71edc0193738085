package registry_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/podfit/podfit/pkg/backing"
	"github.com/podfit/podfit/pkg/registry"
)

var _ = Describe("Registry", func() {
	var (
		ctx context.Context
		reg *registry.Registry
	)

	BeforeEach(func() {
		ctx = context.Background()
		reg = registry.New(backing.NewSimulated())
	})

	It("registers a new node and reports it as existing", func() {
		_, err := reg.Register(ctx, "node-a", 100)
		Expect(err).NotTo(HaveOccurred())
		Expect(reg.Exists("node-a")).To(BeTrue())
	})

	It("rejects a duplicate node_id", func() {
		_, err := reg.Register(ctx, "node-a", 100)
		Expect(err).NotTo(HaveOccurred())
		_, err = reg.Register(ctx, "node-a", 100)
		Expect(err).To(MatchError(registry.ErrAlreadyExists))
	})

	It("rejects re-registration of a previously removed node_id", func() {
		_, err := reg.Register(ctx, "node-a", 100)
		Expect(err).NotTo(HaveOccurred())
		Expect(reg.Deregister(ctx, "node-a")).To(Succeed())

		_, err = reg.Register(ctx, "node-a", 100)
		Expect(err).To(MatchError(registry.ErrAlreadyExists))
	})

	It("errors deregistering an unknown node", func() {
		Expect(reg.Deregister(ctx, "ghost")).To(MatchError(registry.ErrNotFound))
	})

	It("lists admitted nodes", func() {
		_, _ = reg.Register(ctx, "node-a", 100)
		_, _ = reg.Register(ctx, "node-b", 50)
		Expect(reg.List()).To(HaveLen(2))
	})
})
