package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validAddr() string {
	return strings.Repeat("A", AddressLength)
}

// --- ValidAddress ---

func TestValidAddress_Accepts60Uppercase(t *testing.T) {
	assert.True(t, ValidAddress(validAddr()))
	assert.True(t, ValidAddress(strings.Repeat("Z", 60)))
	assert.True(t, ValidAddress("BZFIWHRZXGMKLDJTNHZWQEXBVPYAURRMPCDFGSTINAEOKLQWYUZVBHJMXNCA"))
}

func TestValidAddress_RejectsWrongLength(t *testing.T) {
	assert.False(t, ValidAddress(strings.Repeat("A", 59)))
	assert.False(t, ValidAddress(strings.Repeat("A", 61)))
	assert.False(t, ValidAddress(""))
}

func TestValidAddress_RejectsNonUppercase(t *testing.T) {
	assert.False(t, ValidAddress(strings.Repeat("A", 59)+"a"))
	assert.False(t, ValidAddress(strings.Repeat("A", 59)+"1"))
	assert.False(t, ValidAddress(strings.Repeat("A", 59)+" "))
	assert.False(t, ValidAddress(strings.Repeat("A", 59)+"Ä"))
}

// --- MarketDraft.Validate ---

func draft() MarketDraft {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return MarketDraft{
		Question:          "Will the network reach one million users?",
		Type:              MarketTypeBasic,
		OptionLabels:      []string{"Yes", "No"},
		MinBetQu:          10000,
		MaxSlotsPerOption: 1000,
		CreatorAddress:    validAddr(),
		CloseDate:         now.Add(24 * time.Hour),
		EndDate:           now.Add(48 * time.Hour),
	}
}

func draftNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestMarketDraft_Valid(t *testing.T) {
	fe := draft().Validate(draftNow())
	assert.True(t, fe.OK(), "unexpected problems: %v", fe)
}

func TestMarketDraft_QuestionLength(t *testing.T) {
	d := draft()
	d.Question = "Too short"
	fe := d.Validate(draftNow())
	assert.Contains(t, fe, "question")

	d.Question = strings.Repeat("q", 101)
	fe = d.Validate(draftNow())
	assert.Contains(t, fe, "question")

	d.Question = strings.Repeat("q", 100)
	fe = d.Validate(draftNow())
	assert.NotContains(t, fe, "question")
}

func TestMarketDraft_EndDateEqualCloseDateFails(t *testing.T) {
	d := draft()
	d.EndDate = d.CloseDate
	fe := d.Validate(draftNow())
	assert.Contains(t, fe, "endDate")
}

func TestMarketDraft_CloseDateMustBeFuture(t *testing.T) {
	d := draft()
	d.CloseDate = draftNow()
	fe := d.Validate(draftNow())
	assert.Contains(t, fe, "closeDate")

	d.CloseDate = draftNow().Add(-time.Hour)
	fe = d.Validate(draftNow())
	assert.Contains(t, fe, "closeDate")
}

func TestMarketDraft_MinBetFloor(t *testing.T) {
	d := draft()
	d.MinBetQu = 99
	fe := d.Validate(draftNow())
	assert.Contains(t, fe, "minBet")

	d.MinBetQu = 100
	fe = d.Validate(draftNow())
	assert.NotContains(t, fe, "minBet")
}

func TestMarketDraft_SlotsCapBounds(t *testing.T) {
	d := draft()
	d.MaxSlotsPerOption = 1
	assert.Contains(t, d.Validate(draftNow()), "maxSlotsPerOption")

	d.MaxSlotsPerOption = 15001
	assert.Contains(t, d.Validate(draftNow()), "maxSlotsPerOption")

	d.MaxSlotsPerOption = 2
	assert.NotContains(t, d.Validate(draftNow()), "maxSlotsPerOption")

	d.MaxSlotsPerOption = 15000
	assert.NotContains(t, d.Validate(draftNow()), "maxSlotsPerOption")
}

func TestMarketDraft_RangeTargets(t *testing.T) {
	d := draft()
	d.Type = MarketTypeRange
	d.ResolutionLow = 100
	d.ResolutionHigh = 100
	fe := d.Validate(draftNow())
	assert.Contains(t, fe, "resolutionHigh")

	d.ResolutionHigh = 100.01
	fe = d.Validate(draftNow())
	assert.True(t, fe.OK(), "unexpected problems: %v", fe)
}

func TestMarketDraft_PriceTargetPositive(t *testing.T) {
	d := draft()
	d.Type = MarketTypePrice
	d.ResolutionTarget = 0
	assert.Contains(t, d.Validate(draftNow()), "resolutionTarget")

	d.ResolutionTarget = 0.5
	assert.True(t, d.Validate(draftNow()).OK())
}

func TestMarketDraft_CreatorAddress(t *testing.T) {
	d := draft()
	d.CreatorAddress = strings.Repeat("A", 59)
	assert.Contains(t, d.Validate(draftNow()), "creatorAddress")
}

func TestMarketDraft_CollectsAllProblems(t *testing.T) {
	d := MarketDraft{Type: MarketTypeBasic}
	fe := d.Validate(draftNow())
	assert.False(t, fe.OK())
	assert.Contains(t, fe, "question")
	assert.Contains(t, fe, "options")
	assert.Contains(t, fe, "closeDate")
	assert.Contains(t, fe, "minBet")
	assert.Contains(t, fe, "creatorAddress")
}

// --- BetRequest.Validate ---

func TestBetRequest_Valid(t *testing.T) {
	r := BetRequest{MarketID: "m1", PayoutAddress: validAddr(), Option: 0, Slots: 5}
	assert.True(t, r.Validate().OK())
}

func TestBetRequest_59CharAddressFails(t *testing.T) {
	r := BetRequest{MarketID: "m1", PayoutAddress: strings.Repeat("A", 59), Slots: 5}
	fe := r.Validate()
	assert.Contains(t, fe, "payoutAddress")
}

func TestBetRequest_SlotsAtLeastOne(t *testing.T) {
	r := BetRequest{MarketID: "m1", PayoutAddress: validAddr(), Slots: 0}
	assert.Contains(t, r.Validate(), "slots")
}

// --- WagerRequest.Validate ---

func TestWagerRequest_SideMustBeUpOrDown(t *testing.T) {
	r := WagerRequest{RoundID: "r1", PayoutAddress: validAddr(), Side: "sideways", AmountQu: 100}
	assert.Contains(t, r.Validate(), "side")

	r.Side = FlashSideDown
	assert.True(t, r.Validate().OK())
}

// --- FieldErrors ---

func TestFieldErrors_ErrorJoinsSorted(t *testing.T) {
	fe := FieldErrors{}
	fe.Add("slots", "must be at least 1")
	fe.Add("marketId", "required")
	assert.Equal(t, "marketId: required; slots: must be at least 1", fe.Error())
}

func TestFieldErrors_KeepsFirstMessage(t *testing.T) {
	fe := FieldErrors{}
	fe.Add("question", "first")
	fe.Add("question", "second")
	assert.Equal(t, "first", fe["question"])
}
