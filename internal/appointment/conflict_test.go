package appointment

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDetector_Check(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(Appointment{
		ID: "existing", PatientID: patientA, ProviderID: providerX, SpecialtyID: cardiology,
		Date: mustDate(t, "2030-03-04"), Time: mustClock(t, "09:00:00"),
	})
	d := NewDetector(repo, zerolog.Nop())

	cases := []struct {
		name string
		in   Appointment
		want Verdict
	}{
		{
			name: "both rules hit",
			in:   Appointment{PatientID: patientA, ProviderID: providerX, SpecialtyID: cardiology, Date: mustDate(t, "2030-03-04"), Time: mustClock(t, "09:00")},
			want: Verdict{DuplicateSpecialty: true, ProviderBusy: true},
		},
		{
			name: "other specialty same slot",
			in:   Appointment{PatientID: patientB, ProviderID: providerX, SpecialtyID: dermatology, Date: mustDate(t, "2030-03-04"), Time: mustClock(t, "09:00")},
			want: Verdict{ProviderBusy: true},
		},
		{
			name: "same specialty other slot",
			in:   Appointment{PatientID: patientA, ProviderID: providerY, SpecialtyID: cardiology, Date: mustDate(t, "2030-03-05"), Time: mustClock(t, "09:00")},
			want: Verdict{DuplicateSpecialty: true},
		},
		{
			name: "clear",
			in:   Appointment{PatientID: patientB, ProviderID: providerX, SpecialtyID: cardiology, Date: mustDate(t, "2030-03-04"), Time: mustClock(t, "09:01")},
			want: Verdict{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := d.Check(context.Background(), tc.in)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want == Verdict{}, got.Clear())
		})
	}

	assert.False(t, d.HasConflictExcluding(context.Background(), providerX, mustDate(t, "2030-03-04"), mustClock(t, "09:00"), "existing"))
}

func TestDetector_FailsOpen(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(Appointment{
		PatientID: patientA, ProviderID: providerX, SpecialtyID: cardiology,
		Date: mustDate(t, "2030-03-04"), Time: mustClock(t, "09:00"),
	})
	repo.readErr = errors.New("malformed response")
	d := NewDetector(repo, zerolog.Nop())

	v := d.Check(context.Background(), Appointment{
		PatientID: patientA, ProviderID: providerX, SpecialtyID: cardiology,
		Date: mustDate(t, "2030-03-04"), Time: mustClock(t, "09:00"),
	})

	assert.True(t, v.Clear())
}
