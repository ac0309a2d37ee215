package bondstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

type BondStoreTestSuite struct {
	suite.Suite
	path   string
	logger *logrus.Logger
}

func (suite *BondStoreTestSuite) SetupTest() {
	suite.path = filepath.Join(suite.T().TempDir(), "nested", "bonds.yaml")
	suite.logger = logrus.New()
	suite.logger.SetLevel(logrus.PanicLevel)
}

func (suite *BondStoreTestSuite) open() *Store {
	s, err := Open(suite.path, suite.logger)
	suite.Require().NoError(err)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func (suite *BondStoreTestSuite) TestMissingFileIsEmpty() {
	s := suite.open()
	suite.Empty(s.List())
	_, ok := s.Lookup("die-1")
	suite.False(ok)
}

func (suite *BondStoreTestSuite) TestRememberPersists() {
	// GOAL: Verify remembered bonds survive reopening the store
	//
	// TEST SCENARIO: remember two bonds → reopen → lookup both → list ordered by id
	s := suite.open()
	suite.Require().NoError(s.Remember("die-2", "11:22:33:44:55:66"))
	suite.Require().NoError(s.Remember("die-1", "AA:BB:CC:DD:EE:FF"))

	reopened := suite.open()
	addr, ok := reopened.Lookup("die-1")
	suite.True(ok, "MUST find a persisted bond")
	suite.Equal("AA:BB:CC:DD:EE:FF", addr)

	bonds := reopened.List()
	suite.Require().Len(bonds, 2)
	suite.Equal("die-1", bonds[0].ID, "MUST list bonds ordered by id")
	suite.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), bonds[0].UpdatedAt)
}

func (suite *BondStoreTestSuite) TestRememberSameAddressDoesNotRewrite() {
	s := suite.open()
	suite.Require().NoError(s.Remember("die-1", "AA:BB:CC:DD:EE:FF"))
	suite.Require().NoError(os.Remove(suite.path))

	suite.Require().NoError(s.Remember("die-1", "aa:bb:cc:dd:ee:ff"))
	suite.NoFileExists(suite.path, "MUST skip writing an unchanged bond")
}

func (suite *BondStoreTestSuite) TestRememberRejectsIncompleteBond() {
	s := suite.open()
	suite.Error(s.Remember("", "AA:BB:CC:DD:EE:FF"))
	suite.Error(s.Remember("die-1", "  "))
}

func (suite *BondStoreTestSuite) TestForget() {
	s := suite.open()
	suite.Require().NoError(s.Remember("die-1", "AA:BB:CC:DD:EE:FF"))

	removed, err := s.Forget("die-1")
	suite.Require().NoError(err)
	suite.True(removed)

	removed, err = s.Forget("die-1")
	suite.Require().NoError(err)
	suite.False(removed, "MUST report a missing bond")

	suite.Empty(suite.open().List())
}

func (suite *BondStoreTestSuite) TestCorruptFile() {
	suite.Require().NoError(os.MkdirAll(filepath.Dir(suite.path), 0o755))
	suite.Require().NoError(os.WriteFile(suite.path, []byte("bonds: [unclosed"), 0o600))

	_, err := Open(suite.path, suite.logger)
	suite.ErrorContains(err, "failed to parse bond store")
}

func (suite *BondStoreTestSuite) TestIncompleteEntriesAreSkipped() {
	suite.Require().NoError(os.MkdirAll(filepath.Dir(suite.path), 0o755))
	suite.Require().NoError(os.WriteFile(suite.path, []byte(`bonds:
  - id: die-1
    address: AA:BB:CC:DD:EE:FF
  - id: die-2
`), 0o600))

	s := suite.open()
	suite.Len(s.List(), 1)
}

func (suite *BondStoreTestSuite) TestInMemoryStore() {
	s, err := Open("", suite.logger)
	suite.Require().NoError(err)
	suite.Require().NoError(s.Remember("die-1", "AA:BB:CC:DD:EE:FF"))
	suite.Equal("", s.Path())
	addr, ok := s.Lookup("die-1")
	suite.True(ok)
	suite.Equal("AA:BB:CC:DD:EE:FF", addr)
}

func TestBondStoreTestSuite(t *testing.T) {
	suite.Run(t, new(BondStoreTestSuite))
}
