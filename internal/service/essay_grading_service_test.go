package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/qaim-khanx/essaygradingbot/internal/dto"
	"github.com/qaim-khanx/essaygradingbot/internal/models"
	"github.com/qaim-khanx/essaygradingbot/internal/repository"
	"github.com/qaim-khanx/essaygradingbot/pkg/grading"
)

type stubGrader struct {
	result grading.GradingResult
	err    error
	calls  int
	essays []string
}

func (s *stubGrader) Grade(ctx context.Context, essay string) (grading.GradingResult, error) {
	s.calls++
	s.essays = append(s.essays, essay)
	if s.err != nil {
		return grading.GradingResult{}, s.err
	}
	result := s.result
	result.Essay = essay
	return result, nil
}

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func setupGradingDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.EssayGrading{}))
	return db
}

func sampleResult() grading.GradingResult {
	return grading.GradingResult{
		RelevanceScore: 0.8,
		GrammarScore:   0.6,
		StructureScore: 0.7,
		DepthScore:     0.9,
		FinalScore:     0.75,
		Raw: map[grading.Dimension]string{
			grading.DimensionRelevance: "Score: 0.8",
			grading.DimensionGrammar:   "Score: 0.6",
			grading.DimensionStructure: "Score: 0.7",
			grading.DimensionDepth:     "Score: 0.9",
		},
	}
}

func TestEssayGradingServiceGradeStoresCachesAndPublishes(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	db := setupGradingDB(t)
	grader := &stubGrader{result: sampleResult()}
	publisher := &recordingPublisher{}
	svc := NewEssayGradingService(repository.NewEssayGradingRepository(db), grader, redisClient, publisher,
		validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop(),
		EssayGradingConfig{Model: "gpt-3.5-turbo", CacheTTL: time.Hour, MaxLength: 1000, EventSubject: "essays.graded"})

	ctx := context.Background()
	first, err := svc.Grade(ctx, 7, dto.GradeEssayRequest{Essay: "  Dogs are loyal & kind.\n"})
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	require.False(t, first.Cached)
	require.Equal(t, "Dogs are loyal & kind.", first.Essay)
	require.Equal(t, []string{"Dogs are loyal & kind."}, grader.essays)
	require.InDelta(t, 0.75, first.FinalScore, 1e-9)
	require.Equal(t, "Score: 0.9", first.Raw["depth"])

	var stored models.EssayGrading
	require.NoError(t, db.First(&stored, first.ID).Error)
	require.Equal(t, first.Digest, stored.Digest)
	require.NotNil(t, stored.RequestedBy)
	require.Equal(t, uint(7), *stored.RequestedBy)

	require.Equal(t, []string{"essays.graded"}, publisher.subjects)
	var event dto.EssayGradedEvent
	require.NoError(t, json.Unmarshal(publisher.payloads[0], &event))
	require.Equal(t, first.ID, event.ID)
	require.InDelta(t, 0.75, event.FinalScore, 1e-9)

	second, err := svc.Grade(ctx, 7, dto.GradeEssayRequest{Essay: "Dogs are loyal & kind."})
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, grader.calls)
	require.True(t, mini.Exists("essay:grading:"+first.Digest))
}

func TestEssayGradingServiceGradeWithoutCache(t *testing.T) {
	db := setupGradingDB(t)
	grader := &stubGrader{result: sampleResult()}
	svc := NewEssayGradingService(repository.NewEssayGradingRepository(db), grader, nil, nil,
		validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop(), EssayGradingConfig{Model: "m"})

	first, err := svc.Grade(context.Background(), 0, dto.GradeEssayRequest{Essay: "Same essay"})
	require.NoError(t, err)
	second, err := svc.Grade(context.Background(), 0, dto.GradeEssayRequest{Essay: "Same essay"})
	require.NoError(t, err)

	require.Equal(t, 2, grader.calls)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, first.Digest, second.Digest)
	require.Equal(t, first.FinalScore, second.FinalScore)
}

func TestEssayGradingServiceGradesEssayTextAsSubmitted(t *testing.T) {
	db := setupGradingDB(t)
	grader := &stubGrader{result: sampleResult()}
	svc := NewEssayGradingService(repository.NewEssayGradingRepository(db), grader, nil, nil,
		validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop(), EssayGradingConfig{})

	essays := []string{
		"In Java, a List<String> is generic. Also 3<4 and x<y>z holds. Use <stdio.h> in C.",
		"Generic code reads List<T> and Map<K, V>.",
		"Escaped text stays escaped: &lt;b&gt; &amp; <b>bold</b>.",
	}
	for _, essay := range essays {
		resp, err := svc.Grade(context.Background(), 1, dto.GradeEssayRequest{Essay: essay})
		require.NoError(t, err)
		require.Equal(t, essay, resp.Essay)

		var stored models.EssayGrading
		require.NoError(t, db.First(&stored, resp.ID).Error)
		require.Equal(t, essay, stored.Essay)
	}
	require.Equal(t, essays, grader.essays)
}

func TestEssayGradingServiceCacheKeyTracksRangePolicy(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	db := setupGradingDB(t)
	newService := func(grader *stubGrader, policy string) EssayGradingService {
		return NewEssayGradingService(repository.NewEssayGradingRepository(db), grader, redisClient, nil,
			validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop(),
			EssayGradingConfig{Model: "gpt-3.5-turbo", CacheTTL: time.Hour, RangePolicy: policy})
	}

	clampGrader := &stubGrader{result: sampleResult()}
	clamped, err := newService(clampGrader, "clamp").Grade(context.Background(), 1, dto.GradeEssayRequest{Essay: "Tides follow the moon."})
	require.NoError(t, err)
	require.False(t, clamped.Cached)

	rejectGrader := &stubGrader{result: sampleResult()}
	rejectService := newService(rejectGrader, "reject")
	rejected, err := rejectService.Grade(context.Background(), 1, dto.GradeEssayRequest{Essay: "Tides follow the moon."})
	require.NoError(t, err)
	require.False(t, rejected.Cached)
	require.NotEqual(t, clamped.Digest, rejected.Digest)
	require.Equal(t, 1, rejectGrader.calls)

	again, err := rejectService.Grade(context.Background(), 1, dto.GradeEssayRequest{Essay: "Tides follow the moon."})
	require.NoError(t, err)
	require.True(t, again.Cached)
	require.Equal(t, 1, rejectGrader.calls)

	defaulted, err := newService(&stubGrader{result: sampleResult()}, "").Grade(context.Background(), 1, dto.GradeEssayRequest{Essay: "Tides follow the moon."})
	require.NoError(t, err)
	require.True(t, defaulted.Cached)
	require.Equal(t, rejected.Digest, defaulted.Digest)
}

func TestEssayGradingServiceRejectsInvalidInput(t *testing.T) {
	db := setupGradingDB(t)
	grader := &stubGrader{result: sampleResult()}
	svc := NewEssayGradingService(repository.NewEssayGradingRepository(db), grader, nil, nil,
		validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop(), EssayGradingConfig{MaxLength: 10})

	_, err := svc.Grade(context.Background(), 1, dto.GradeEssayRequest{})
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)

	_, err = svc.Grade(context.Background(), 1, dto.GradeEssayRequest{Essay: " \n\t "})
	require.ErrorIs(t, err, grading.ErrEmptyEssay)

	_, err = svc.Grade(context.Background(), 1, dto.GradeEssayRequest{Essay: "this essay is far too long"})
	require.ErrorIs(t, err, ErrEssayTooLong)

	require.Zero(t, grader.calls)
}

func TestEssayGradingServicePropagatesGraderErrors(t *testing.T) {
	db := setupGradingDB(t)
	upstream := &grading.EvaluationError{Dimension: grading.DimensionGrammar, Err: &grading.UpstreamError{Err: errors.New("boom")}}
	grader := &stubGrader{err: upstream}
	publisher := &recordingPublisher{}
	svc := NewEssayGradingService(repository.NewEssayGradingRepository(db), grader, nil, publisher,
		validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop(), EssayGradingConfig{EventSubject: "essays.graded"})

	_, err := svc.Grade(context.Background(), 1, dto.GradeEssayRequest{Essay: "essay"})
	var evalErr *grading.EvaluationError
	require.ErrorAs(t, err, &evalErr)
	require.Equal(t, grading.DimensionGrammar, evalErr.Dimension)

	var count int64
	require.NoError(t, db.Model(&models.EssayGrading{}).Count(&count).Error)
	require.Zero(t, count)
	require.Empty(t, publisher.subjects)
}

func TestEssayGradingServiceRequiresGrader(t *testing.T) {
	db := setupGradingDB(t)
	svc := NewEssayGradingService(repository.NewEssayGradingRepository(db), nil, nil, nil,
		validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop(), EssayGradingConfig{})

	_, err := svc.Grade(context.Background(), 1, dto.GradeEssayRequest{Essay: "essay"})
	require.ErrorIs(t, err, ErrGraderUnavailable)
}

func TestEssayGradingServicePublishFailureIsNotFatal(t *testing.T) {
	db := setupGradingDB(t)
	publisher := &recordingPublisher{err: errors.New("nats: connection closed")}
	svc := NewEssayGradingService(repository.NewEssayGradingRepository(db), &stubGrader{result: sampleResult()}, nil, publisher,
		validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop(), EssayGradingConfig{EventSubject: "essays.graded"})

	resp, err := svc.Grade(context.Background(), 1, dto.GradeEssayRequest{Essay: "essay"})
	require.NoError(t, err)
	require.NotZero(t, resp.ID)
	require.Len(t, publisher.subjects, 1)
}

func TestEssayGradingServiceGetAndList(t *testing.T) {
	db := setupGradingDB(t)
	svc := NewEssayGradingService(repository.NewEssayGradingRepository(db), &stubGrader{result: sampleResult()}, nil, nil,
		validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop(), EssayGradingConfig{})

	created, err := svc.Grade(context.Background(), 1, dto.GradeEssayRequest{Essay: "first"})
	require.NoError(t, err)
	_, err = svc.Grade(context.Background(), 1, dto.GradeEssayRequest{Essay: "second"})
	require.NoError(t, err)

	fetched, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, "first", fetched.Essay)

	_, err = svc.Get(context.Background(), 999)
	require.ErrorIs(t, err, ErrGradingNotFound)

	list, err := svc.List(context.Background(), repository.EssayGradingFilter{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, int64(2), list.Total)
	require.Len(t, list.Items, 2)
	require.Equal(t, 1, list.Page)
	require.Equal(t, 20, list.PageSize)
}

func TestEssayGradingServiceGradeDocument(t *testing.T) {
	db := setupGradingDB(t)
	grader := &stubGrader{result: sampleResult()}
	svc := NewEssayGradingService(repository.NewEssayGradingRepository(db), grader, nil, nil,
		validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop(), EssayGradingConfig{})

	resp, err := svc.GradeDocument(context.Background(), 1, strings.NewReader("Plain text essay about rivers and x<y>z.\n"))
	require.NoError(t, err)
	require.Equal(t, "Plain text essay about rivers and x<y>z.", resp.Essay)

	page := "<!DOCTYPE html><html><body><p>Rivers &amp; <b>deltas</b></p></body></html>"
	resp, err = svc.GradeDocument(context.Background(), 1, strings.NewReader(page))
	require.NoError(t, err)
	require.Equal(t, "Rivers & deltas", resp.Essay)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	_, err = svc.GradeDocument(context.Background(), 1, bytes.NewReader(png))
	require.ErrorIs(t, err, ErrUnsupportedEssayFile)

	_, err = svc.GradeDocument(context.Background(), 1, strings.NewReader(""))
	require.ErrorIs(t, err, grading.ErrEmptyEssay)
	require.Equal(t, 2, grader.calls)
}
