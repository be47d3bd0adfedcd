package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerProfileNormalizesDepartment(t *testing.T) {
	cases := map[string]string{
		"flat string":     `{"id": 7, "department": "Roads", "office": "North"}`,
		"nested object":   `{"id": 7, "department": {"id": 3, "name": "Roads"}, "office": {"name": "North"}}`,
		"alternate names": `{"id": "7", "department_name": "Roads", "office_name": "North"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			var p WorkerProfile
			require.NoError(t, json.Unmarshal([]byte(payload), &p))
			assert.Equal(t, ID("7"), p.ID)
			assert.Equal(t, NamedRef("Roads"), p.Department)
			assert.Equal(t, NamedRef("North"), p.Office)
		})
	}
}

func TestWorkerProfileStoredShapeIsFlat(t *testing.T) {
	p := WorkerProfile{ID: "7", Username: "jdoe", Department: "Roads"}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"department":"Roads"`)
}

func TestWorkerProfileFullName(t *testing.T) {
	assert.Equal(t, "Jane Doe", WorkerProfile{FirstName: "Jane", LastName: "Doe"}.FullName())
	assert.Equal(t, "jdoe", WorkerProfile{Username: "jdoe"}.FullName())
}

func TestComplaintListEnvelopes(t *testing.T) {
	var bare, wrapped ComplaintList
	require.NoError(t, json.Unmarshal([]byte(`[{"id": 1, "status": "ASSIGNED"}]`), &bare))
	require.NoError(t, json.Unmarshal([]byte(`{"count": 1, "results": [{"id": 1, "status": "ASSIGNED", "city": {"name": "Lyon"}}]}`), &wrapped))

	require.Len(t, bare, 1)
	require.Len(t, wrapped, 1)
	assert.Equal(t, ComplaintStatusAssigned, wrapped[0].Status)
	assert.Equal(t, NamedRef("Lyon"), wrapped[0].City)
	assert.Nil(t, bare[0].SLADeadline)
}

func TestComplaintDeadlineDecodes(t *testing.T) {
	var c Complaint
	require.NoError(t, json.Unmarshal([]byte(`{"id": 9, "status": "IN_PROGRESS", "sla_deadline": "2024-01-01T00:00:00Z"}`), &c))
	require.NotNil(t, c.SLADeadline)
	assert.Equal(t, 2024, c.SLADeadline.Year())
}
