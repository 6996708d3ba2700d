package main

import "jobdeck/internal/models"

// Type aliases so handler code and tests can use the unqualified names
// while the definitions live in internal/models.

type APIResponse = models.APIResponse
type Meta = models.Meta
type Job = models.Job
type WorkType = models.WorkType
type WorkTypeStage = models.WorkTypeStage
type JobStageProgress = models.JobStageProgress
type StaffMember = models.StaffMember
type PipelineColumn = models.PipelineColumn
type SyncLog = models.SyncLog
type OAuthToken = models.OAuthToken
type CalendarDay = models.CalendarDay
type CalendarItem = models.CalendarItem
