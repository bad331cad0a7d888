// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

//go:build integration

package store_test

import (
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/turnia/turnia/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var m *store.Migrator

	BeforeAll(func() {
		var err error
		m, err = store.NewMigrator(db.URL)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { Expect(m.Close()).To(Succeed()) })
	})

	It("reports the schema as current after start up", func() {
		st, err := m.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.UpToDate()).To(BeTrue())
		Expect(st.Current).To(Equal(st.Latest))
	})

	It("steps down and back up", func() {
		st, err := m.Status()
		Expect(err).NotTo(HaveOccurred())

		Expect(m.Steps(-1)).To(Succeed())
		v, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(dirty).To(BeFalse())
		Expect(v).To(Equal(st.Latest - 1))

		Expect(m.Up()).To(Succeed())
		v, _, err = m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(st.Latest))
	})

	It("treats a second Up as a no-op", func() {
		Expect(m.Up()).To(Succeed())
	})
})
