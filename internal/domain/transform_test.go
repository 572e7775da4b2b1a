package domain

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const firmsHeader = "latitude,longitude,bright_ti4,scan,track,acq_date,acq_time,satellite,instrument,confidence,version,bright_ti5,frp,daynight"

func defaultSpec(t *testing.T) ColumnSpec {
	t.Helper()
	spec, err := ParseColumnSpec(DefaultColumnSpec)
	require.NoError(t, err)
	return spec
}

func TestTransform_EndToEndExample(t *testing.T) {
	raw := "latitude,longitude,bright_ti4,other\n13.7,100.5,310.2,x\n"
	spec := ColumnSpec{
		{Source: "latitude", Output: "latitude"},
		{Source: "longitude", Output: "longitude"},
		{Source: "bright_ti4", Output: "brightness"},
	}

	res, err := Transform(raw, spec, ',')
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, "latitude,longitude,brightness\n13.7,100.5,310.2\n", string(Serialize(spec, res.Records)))
}

func TestTransform_FIRMSPayload(t *testing.T) {
	raw := firmsHeader + "\n" +
		"13.71234,100.51234,331.4,0.39,0.36,2024-03-01,0618,N,VIIRS,n,2.0NRT,293.1,5.2,D\n" +
		"18.80012,98.98001,345.9,0.41,0.37,2024-03-01,0618,N,VIIRS,h,2.0NRT,296.7,12.8,D\n" +
		"7.00500,100.47000,309.0,0.52,0.50,2024-03-01,1842,N,VIIRS,l,2.0NRT,288.0,1.1,N\n"

	res, err := Transform(raw, defaultSpec(t), ',')
	require.NoError(t, err)

	want := []ProjectedRecord{
		{"13.71234", "100.51234", "331.4"},
		{"18.80012", "98.98001", "345.9"},
		{"7.00500", "100.47000", "309.0"},
	}
	if diff := cmp.Diff(want, res.Records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestTransform_PreservesSpecOrder(t *testing.T) {
	raw := "a,b,c\n1,2,3\n4,5,6\n"
	spec := ColumnSpec{{Source: "c", Output: "z"}, {Source: "a", Output: "x"}}

	res, err := Transform(raw, spec, ',')
	require.NoError(t, err)
	assert.Equal(t, []ProjectedRecord{{"3", "1"}, {"6", "4"}}, res.Records)
	assert.Equal(t, "z,x\n3,1\n6,4\n", string(Serialize(spec, res.Records)))
}

func TestTransform_OneRecordPerLineInInputOrder(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,lat,lon\n")
	for i := range 50 {
		b.WriteString(strings.Repeat("9", i%3+1))
		b.WriteString(",1,2\n")
	}
	spec := ColumnSpec{{Source: "id", Output: "id"}, {Source: "lat", Output: "lat"}}

	res, err := Transform(b.String(), spec, ',')
	require.NoError(t, err)
	require.Len(t, res.Records, 50)
	for i, rec := range res.Records {
		assert.Len(t, rec, len(spec))
		assert.Equal(t, strings.Repeat("9", i%3+1), rec[0])
	}
}

func TestTransform_SchemaMismatch(t *testing.T) {
	raw := "latitude,longitude,brightness\n13.7,100.5,310.2\n"

	res, err := Transform(raw, defaultSpec(t), ',')
	require.Error(t, err)

	var mismatch *SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"bright_ti4"}, mismatch.Missing)
	assert.Contains(t, err.Error(), "bright_ti4")
	assert.Empty(t, res.Records)
}

func TestTransform_SchemaMismatchListsEveryMissingColumn(t *testing.T) {
	_, err := Transform("acq_date,frp\n2024-03-01,5.2\n", defaultSpec(t), ',')

	var mismatch *SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"latitude", "longitude", "bright_ti4"}, mismatch.Missing)
}

func TestTransform_EmptyPayloads(t *testing.T) {
	spec := defaultSpec(t)

	t.Run("no bytes", func(t *testing.T) {
		res, err := Transform("", spec, ',')
		require.NoError(t, err)
		assert.Empty(t, res.Records)
	})

	t.Run("only whitespace", func(t *testing.T) {
		res, err := Transform("\n\r\n  \n", spec, ',')
		require.NoError(t, err)
		assert.Empty(t, res.Records)
	})

	t.Run("header only", func(t *testing.T) {
		res, err := Transform(firmsHeader+"\n", spec, ',')
		require.NoError(t, err)
		assert.Empty(t, res.Records)
		assert.Equal(t, "latitude,longitude,brightness\n", string(Serialize(spec, res.Records)))
	})

	t.Run("header only still validated", func(t *testing.T) {
		_, err := Transform("foo,bar\n", spec, ',')
		var mismatch *SchemaMismatchError
		assert.ErrorAs(t, err, &mismatch)
	})
}

func TestTransform_SkipsTruncatedRows(t *testing.T) {
	raw := "latitude,longitude,bright_ti4\n" +
		"13.7,100.5,310.2\n" +
		"14.1,101.0\n" +
		"15.2,99.8,320.0\n"

	res, err := Transform(raw, defaultSpec(t), ',')
	require.NoError(t, err)
	assert.Equal(t, []ProjectedRecord{{"13.7", "100.5", "310.2"}, {"15.2", "99.8", "320.0"}}, res.Records)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, RowTruncatedError{Line: 3, Fields: 2, Want: 3}, res.Skipped[0])
	assert.Contains(t, res.Skipped[0].Error(), "line 3")
}

func TestTransform_ShortRowAcceptedWhenRequiredFieldsPresent(t *testing.T) {
	// The spec only needs columns 0 and 1, so a row missing trailing
	// columns it never reads is still projected.
	raw := "latitude,longitude,bright_ti4,frp\n13.7,100.5\n"
	spec := ColumnSpec{{Source: "latitude", Output: "lat"}, {Source: "longitude", Output: "lon"}}

	res, err := Transform(raw, spec, ',')
	require.NoError(t, err)
	assert.Equal(t, []ProjectedRecord{{"13.7", "100.5"}}, res.Records)
	assert.Empty(t, res.Skipped)
}

func TestTransform_DuplicateHeaderFirstWins(t *testing.T) {
	raw := "latitude,latitude,longitude,bright_ti4\n1,2,3,4\n"

	res, err := Transform(raw, defaultSpec(t), ',')
	require.NoError(t, err)
	assert.Equal(t, []ProjectedRecord{{"1", "3", "4"}}, res.Records)
}

func TestTransform_CRLFAndBOM(t *testing.T) {
	raw := "\ufefflatitude , longitude,bright_ti4\r\n13.7,100.5,310.2\r\n\r\n"

	res, err := Transform(raw, defaultSpec(t), ',')
	require.NoError(t, err)
	assert.Equal(t, []ProjectedRecord{{"13.7", "100.5", "310.2"}}, res.Records)
}

func TestTransform_NoTrailingNewline(t *testing.T) {
	res, err := Transform("latitude,longitude,bright_ti4\n1,2,3", defaultSpec(t), ',')
	require.NoError(t, err)
	assert.Equal(t, []ProjectedRecord{{"1", "2", "3"}}, res.Records)
}

func TestTransform_ValuesPassThroughUntouched(t *testing.T) {
	res, err := Transform("latitude,longitude,bright_ti4\n 13.70 ,+100.5,UNK\n", defaultSpec(t), ',')
	require.NoError(t, err)
	assert.Equal(t, []ProjectedRecord{{" 13.70 ", "+100.5", "UNK"}}, res.Records)
}

func TestTransform_CustomDelimiter(t *testing.T) {
	res, err := Transform("latitude;longitude;bright_ti4\n13.7;100.5;310.2\n", defaultSpec(t), ';')
	require.NoError(t, err)
	assert.Equal(t, []ProjectedRecord{{"13.7", "100.5", "310.2"}}, res.Records)
	assert.Empty(t, res.Skipped)
}

func TestTransform_CustomDelimiterSkipsValuesContainingComma(t *testing.T) {
	spec := ColumnSpec{
		{Source: "latitude", Output: "latitude"},
		{Source: "place", Output: "place"},
		{Source: "bright_ti4", Output: "brightness"},
	}
	raw := "latitude\tplace\tbright_ti4\n" +
		"13.7\tBangkok, TH\t310.2\n" +
		"18.8\tChiang Mai\t301.4\n"

	res, err := Transform(raw, spec, '\t')
	require.NoError(t, err)
	assert.Equal(t, []ProjectedRecord{{"18.8", "Chiang Mai", "301.4"}}, res.Records)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, RowDelimiterError{Line: 2, Column: "place"}, res.Skipped[0])

	// Every artifact line keeps the header's width.
	out := string(Serialize(spec, res.Records))
	assert.Equal(t, "latitude,place,brightness\n18.8,Chiang Mai,301.4\n", out)
	for _, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		assert.Len(t, strings.Split(line, ","), len(spec))
	}
}

func TestTransform_CommaInUnprojectedColumnIsKept(t *testing.T) {
	raw := "latitude\tlongitude\tbright_ti4\tplace\n13.7\t100.5\t310.2\tBangkok, TH\n"

	res, err := Transform(raw, defaultSpec(t), '\t')
	require.NoError(t, err)
	assert.Equal(t, []ProjectedRecord{{"13.7", "100.5", "310.2"}}, res.Records)
	assert.Empty(t, res.Skipped)
}

func TestSerialize_Idempotent(t *testing.T) {
	raw := firmsHeader + "\n13.7,100.5,331.4,0.39,0.36,2024-03-01,0618,N,VIIRS,n,2.0NRT,293.1,5.2,D\n"
	spec := defaultSpec(t)

	first, err := Transform(raw, spec, ',')
	require.NoError(t, err)
	second, err := Transform(raw, spec, ',')
	require.NoError(t, err)

	assert.Equal(t, Serialize(spec, first.Records), Serialize(spec, second.Records))
}
