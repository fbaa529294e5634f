package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/coffee-counter/internal/repository/store"
)

type bsonLikeDateTime int64

func (d bsonLikeDateTime) Time() time.Time { return time.UnixMilli(int64(d)) }

func TestDecodeBagFailures(t *testing.T) {
	cases := map[string]store.Record{
		"empty":         {},
		"nil fields":    {"brand": nil, "name": nil},
		"missing name":  {"brand": "BRAND"},
		"nil brand":     {"brand": nil, "name": "NAME"},
		"bad weight":    {"brand": "BRAND", "name": "NAME", "weight": "heavy"},
		"bad start":     {"brand": "BRAND", "name": "NAME", "start": "yesterday"},
		"active+finish": {"brand": "BRAND", "name": "NAME", "finish": "2021-03-07", "active": true},
	}

	for name, record := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeBag(record)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestDecodeBagDefaults(t *testing.T) {
	bag, err := DecodeBag(store.Record{"brand": "BRAND", "name": "NAME", "random_field": "RANDOM"})
	require.NoError(t, err)
	assert.NotEmpty(t, bag.Key)
	assert.Equal(t, DefaultBagWeight, bag.Weight)
	assert.Nil(t, bag.Start)
	assert.True(t, bag.Active)

	finished, err := DecodeBag(store.Record{"brand": "B", "name": "N", "weight": int32(250), "finish": "2021-03-07"})
	require.NoError(t, err)
	assert.False(t, finished.Active)
	assert.Equal(t, 250.0, finished.Weight)
	assert.Equal(t, NewDate(2021, time.March, 7), *finished.Finish)
}

func TestDecodeBagAcceptsDriverDates(t *testing.T) {
	start := time.Date(2021, time.February, 19, 0, 0, 0, 0, time.UTC)
	bag, err := DecodeBag(store.Record{"brand": "B", "name": "N", "start": bsonLikeDateTime(start.UnixMilli())})
	require.NoError(t, err)
	assert.Equal(t, "2021-02-19", bag.Start.String())
}

func TestBagRoundTrip(t *testing.T) {
	bags := []CoffeeBag{
		{Key: "bag1", Brand: "BRCC", Name: "Flying Elk", Weight: 340, Start: NewDate(2021, 2, 19).Ptr(), Active: true},
		{Key: "bag2", Brand: "BRCC", Name: "Beyond Black", Weight: 3940832.498, Start: NewDate(2021, 2, 1).Ptr(), Finish: NewDate(2021, 3, 7).Ptr()},
		{Key: "bag3", Brand: "Onyx", Name: "Southern Weather", Weight: 283.5, Active: true},
	}

	for _, bag := range bags {
		t.Run(bag.Key, func(t *testing.T) {
			decoded, err := DecodeBag(EncodeBag(bag))
			require.NoError(t, err)
			assert.Equal(t, bag, decoded)
		})
	}
}

func TestNewCoffeeBag(t *testing.T) {
	today := NewDate(2021, 3, 11)

	bag, err := NewCoffeeBag("BRAND", "NAME", 0, nil, today)
	require.NoError(t, err)
	assert.Equal(t, DefaultBagWeight, bag.Weight)
	assert.Equal(t, today, *bag.Start)
	assert.True(t, bag.Active)
	assert.Nil(t, bag.Finish)

	_, err = NewCoffeeBag("", "NAME", 0, nil, today)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = NewCoffeeBag("BRAND", "NAME", -1, nil, today)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDecodeUseFailures(t *testing.T) {
	cases := map[string]store.Record{
		"empty":          {},
		"missing time":   {"bag_id": "BAG_ID"},
		"nil bag":        {"bag_id": nil},
		"nil bag + time": {"bag_id": nil, "datetime": "2021-02-21T08:00:00"},
		"bad time":       {"bag_id": "BAG_ID", "datetime": "noon"},
	}

	for name, record := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeUse(record)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestUseRoundTrip(t *testing.T) {
	use := CoffeeUse{Key: "use1", BagID: "bag1", DateTime: time.Date(2021, 2, 21, 7, 30, 15, 0, time.UTC)}

	record := EncodeUse(use)
	assert.Equal(t, "2021-02-21T07:30:15", record[UseFieldDateTime])
	assert.Equal(t, use.DateTime.UnixMilli(), record[UseFieldTimestamp])

	decoded, err := DecodeUse(record)
	require.NoError(t, err)
	assert.Equal(t, use, decoded)
}

func TestUseTimestampIsDerived(t *testing.T) {
	decoded, err := DecodeUse(store.Record{
		"bag_id":    "bag1",
		"datetime":  "2021-03-05T10:00:00.987654Z",
		"timestamp": int64(1),
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 3, 5, 10, 0, 0, 0, time.UTC), decoded.DateTime)
	assert.Equal(t, decoded.DateTime.UnixMilli(), decoded.Timestamp())
}

func TestKeyedJSONPreservesOrder(t *testing.T) {
	uses := KeyedUses{
		{Key: "z", BagID: "bag1", DateTime: time.Date(2021, 2, 21, 0, 0, 0, 0, time.UTC)},
		{Key: "a", BagID: "bag1", DateTime: time.Date(2021, 2, 22, 0, 0, 0, 0, time.UTC)},
	}

	data, err := json.Marshal(uses)
	require.NoError(t, err)
	assert.Equal(t,
		`{"z":{"key":"z","bag_id":"bag1","datetime":"2021-02-21T00:00:00Z"},"a":{"key":"a","bag_id":"bag1","datetime":"2021-02-22T00:00:00Z"}}`,
		string(data))

	empty, err := json.Marshal(KeyedBags(nil))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(empty))
}

func TestDateJSON(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2021-02-19"`), &d))
	assert.Equal(t, NewDate(2021, time.February, 19), d)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2021-02-19"`, string(data))

	assert.Error(t, json.Unmarshal([]byte(`"19/02/2021"`), &d))
}

func TestParseDateTrailingText(t *testing.T) {
	d, err := ParseDate("2021-02-20T10:00:00")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2021, time.February, 20), d)

	for _, value := range []string{"2021-02-20junk", "2021-02-20 10:00:00", "2021-02-200"} {
		_, err := ParseDate(value)
		assert.Error(t, err, value)
	}

	var decoded Date
	assert.Error(t, json.Unmarshal([]byte(`"2021-02-20junk"`), &decoded))

	_, err = DecodeBag(store.Record{"brand": "BRCC", "name": "Flying Elk", "start": "2021-02-20junk"})
	assert.ErrorIs(t, err, ErrValidation)
}
