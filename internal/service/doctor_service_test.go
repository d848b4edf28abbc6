package service

import (
	"context"
	"learnbridge_backend/internal/model"
	"learnbridge_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctorLinkLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor := env.createUser(t, "Strange", model.Doctor, nil)
	child := env.createUser(t, "Gus", model.Child, nil)
	parent := env.createUser(t, "Hal", model.Parent, nil)
	svc := NewDoctorService(env.doctors, env.users)

	_, err := svc.LinkPatient(ctx, sessionFor(doctor), LinkPatientRequest{PatientID: parent.ID})
	assert.ErrorIs(t, err, util.ErrInvalidPatient)

	_, err = svc.LinkPatient(ctx, sessionFor(parent), LinkPatientRequest{PatientID: child.ID})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	link, err := svc.LinkPatient(ctx, sessionFor(doctor), LinkPatientRequest{PatientID: child.ID, Notes: "weekly"})
	require.NoError(t, err)
	assert.Equal(t, model.LinkActive, link.Status)

	again, err := svc.LinkPatient(ctx, sessionFor(doctor), LinkPatientRequest{PatientID: child.ID})
	require.NoError(t, err)
	assert.Equal(t, link.ID, again.ID)

	patients, err := svc.ListPatients(ctx, sessionFor(doctor))
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, child.ID, patients[0].Patient.ID)

	require.NoError(t, svc.UnlinkPatient(ctx, sessionFor(doctor), child.ID))
	assert.ErrorIs(t, svc.UnlinkPatient(ctx, sessionFor(doctor), child.ID), util.ErrNotLinked)

	linked, err := env.doctors.IsLinked(ctx, doctor.ID, child.ID)
	require.NoError(t, err)
	assert.False(t, linked)
}

func TestAccessPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	parent := env.createUser(t, "Ivy", model.Parent, nil)
	child := env.createUser(t, "Jo", model.Child, &parent.ID)
	stranger := env.createUser(t, "Ken", model.Parent, nil)
	doctor := env.createUser(t, "Lee", model.Doctor, nil)
	admin := env.createUser(t, "Max", model.Admin, nil)
	policy := NewAccessPolicy(env.users, env.doctors)

	check := func(s *Session) bool {
		ok, err := policy.CanView(ctx, s, child.ID)
		require.NoError(t, err)
		return ok
	}

	assert.True(t, check(sessionFor(child)))
	assert.True(t, check(sessionFor(parent)))
	assert.True(t, check(sessionFor(admin)))
	assert.False(t, check(sessionFor(stranger)))
	assert.False(t, check(sessionFor(doctor)))
	assert.False(t, check(nil))

	env.link(t, doctor.ID, child.ID)
	assert.True(t, check(sessionFor(doctor)))
}
