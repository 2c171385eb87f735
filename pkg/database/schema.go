package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the database schema for the scheduling service
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	if err := db.createExtensions(ctx); err != nil {
		return fmt.Errorf("failed to create extensions: %w", err)
	}

	tables := []string{
		createDoctorSchedulesTable,
		createDoctorLeavesTable,
		createAppointmentsTable,
		createQueuesTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		createDoctorSchedulesIndexes,
		createDoctorLeavesIndexes,
		createAppointmentsIndexes,
		createQueuesIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

// createExtensions creates required PostgreSQL extensions
func (db *DB) createExtensions(ctx context.Context) error {
	extensions := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	}

	for _, ext := range extensions {
		if _, err := db.ExecContext(ctx, ext); err != nil {
			return fmt.Errorf("failed to create extension: %w", err)
		}
	}

	return nil
}

// SQL DDL statements for table creation
const (
	createDoctorSchedulesTable = `
		CREATE TABLE IF NOT EXISTS doctor_schedules (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			doctor_id UUID NOT NULL,
			day_of_week INTEGER NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
			start_time TIME NOT NULL,
			end_time TIME NOT NULL,
			slot_duration_minutes INTEGER NOT NULL DEFAULT 30 CHECK (slot_duration_minutes BETWEEN 10 AND 120),
			max_patients_per_slot INTEGER NOT NULL DEFAULT 1 CHECK (max_patients_per_slot > 0),
			break_start TIME,
			break_end TIME,
			effective_from DATE NOT NULL,
			effective_until DATE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (start_time < end_time),
			CHECK (effective_until IS NULL OR effective_from <= effective_until)
		);`

	createDoctorLeavesTable = `
		CREATE TABLE IF NOT EXISTS doctor_leaves (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			doctor_id UUID NOT NULL,
			leave_type VARCHAR(30) NOT NULL,
			start_date DATE NOT NULL,
			end_date DATE NOT NULL,
			start_time TIME,
			end_time TIME,
			reason TEXT,
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			approved_by UUID,
			approved_at TIMESTAMPTZ,
			rejection_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (start_date <= end_date)
		);`

	createAppointmentsTable = `
		CREATE TABLE IF NOT EXISTS appointments (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			appointment_number VARCHAR(20) UNIQUE NOT NULL,
			patient_id UUID NOT NULL,
			doctor_id UUID NOT NULL,
			department_id UUID,
			appointment_date DATE NOT NULL,
			appointment_time TIME NOT NULL,
			slot_duration INTEGER NOT NULL DEFAULT 30,
			appointment_type VARCHAR(30) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'SCHEDULED',
			is_emergency BOOLEAN NOT NULL DEFAULT FALSE,
			priority INTEGER NOT NULL DEFAULT 3 CHECK (priority BETWEEN 1 AND 5),
			reason TEXT,
			symptoms TEXT,
			notes TEXT,
			checked_in_at TIMESTAMPTZ,
			checked_in_by UUID,
			cancelled_at TIMESTAMPTZ,
			cancelled_by UUID,
			cancelled_reason TEXT,
			rescheduled_from UUID REFERENCES appointments(id),
			rescheduled_to UUID REFERENCES appointments(id),
			confirmation_sent BOOLEAN NOT NULL DEFAULT FALSE,
			created_by UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`

	createQueuesTable = `
		CREATE TABLE IF NOT EXISTS queues (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			appointment_id UUID REFERENCES appointments(id),
			patient_id UUID NOT NULL,
			doctor_id UUID NOT NULL,
			department_id UUID,
			queue_number INTEGER NOT NULL,
			queue_date DATE NOT NULL,
			queue_type VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'WAITING',
			priority INTEGER NOT NULL DEFAULT 3 CHECK (priority BETWEEN 1 AND 5),
			is_emergency BOOLEAN NOT NULL DEFAULT FALSE,
			checked_in_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			called_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			estimated_wait_time INTEGER,
			actual_wait_time INTEGER,
			notes TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (doctor_id, queue_date, queue_number)
		);`
)

// SQL statements for index creation
const (
	createDoctorSchedulesIndexes = `
		CREATE INDEX IF NOT EXISTS idx_doctor_schedules_doctor ON doctor_schedules(doctor_id);
		CREATE INDEX IF NOT EXISTS idx_doctor_schedules_lookup ON doctor_schedules(doctor_id, day_of_week, is_active);`

	createDoctorLeavesIndexes = `
		CREATE INDEX IF NOT EXISTS idx_doctor_leaves_doctor ON doctor_leaves(doctor_id);
		CREATE INDEX IF NOT EXISTS idx_doctor_leaves_range ON doctor_leaves(doctor_id, status, start_date, end_date);`

	createAppointmentsIndexes = `
		CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments(patient_id);
		CREATE INDEX IF NOT EXISTS idx_appointments_doctor_date ON appointments(doctor_id, appointment_date);
		CREATE INDEX IF NOT EXISTS idx_appointments_slot ON appointments(doctor_id, appointment_date, appointment_time, status);
		CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status);`

	createQueuesIndexes = `
		CREATE INDEX IF NOT EXISTS idx_queues_doctor_date ON queues(doctor_id, queue_date);
		CREATE INDEX IF NOT EXISTS idx_queues_ordering ON queues(doctor_id, queue_date, status, is_emergency, priority, queue_number);
		CREATE INDEX IF NOT EXISTS idx_queues_appointment ON queues(appointment_id);`
)
