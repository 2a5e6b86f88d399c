package handler

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/yourusername/polegion-api/internal/domain/entity"
	"github.com/yourusername/polegion-api/internal/service"
)

var leaderboardExportHeaders = []string{"Rank", "Name", "Email", "XP"}

// LeaderboardHandler обрабатывает запросы лидербордов комнаты
type LeaderboardHandler struct {
	leaderboards *service.LeaderboardService
	competitions *service.CompetitionService
}

// NewLeaderboardHandler создает новый обработчик лидербордов
func NewLeaderboardHandler(leaderboards *service.LeaderboardService, competitions *service.CompetitionService) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboards: leaderboards,
		competitions: competitions,
	}
}

// GetRoomLeaderboard возвращает лидерборд комнаты
// GET /api/rooms/:id/leaderboard
func (h *LeaderboardHandler) GetRoomLeaderboard(c *gin.Context) {
	roomID := c.MustGet("roomID").(uint)
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.competitions.RequireRoomMember(c.Request.Context(), roomID, userID); err != nil {
		handleError(c, err)
		return
	}

	board, err := h.leaderboards.GetRoomBoard(c.Request.Context(), roomID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

// GetCompetitionLeaderboards возвращает лидерборды всех соревнований комнаты
// GET /api/rooms/:id/competition-leaderboards
func (h *LeaderboardHandler) GetCompetitionLeaderboards(c *gin.Context) {
	roomID := c.MustGet("roomID").(uint)
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.competitions.RequireRoomMember(c.Request.Context(), roomID, userID); err != nil {
		handleError(c, err)
		return
	}

	boards, err := h.leaderboards.GetCompeBoard(c.Request.Context(), roomID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, boards)
}

// ExportRoomLeaderboard выгружает лидерборд комнаты в CSV или Excel
// GET /api/rooms/:id/leaderboard/export?format=csv|xlsx
func (h *LeaderboardHandler) ExportRoomLeaderboard(c *gin.Context) {
	roomID := c.MustGet("roomID").(uint)
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "xlsx" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or xlsx"})
		return
	}

	if err := h.competitions.RequireRoomOwner(c.Request.Context(), roomID, userID); err != nil {
		handleError(c, err)
		return
	}

	board, err := h.leaderboards.GetRoomBoard(c.Request.Context(), roomID)
	if err != nil {
		handleError(c, err)
		return
	}

	filename := fmt.Sprintf("room_%d_leaderboard_%s", roomID, time.Now().Format("2006-01-02"))
	rows := leaderboardExportRows(board)

	switch format {
	case "xlsx":
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))
		if err := writeLeaderboardXLSX(c.Writer, rows); err != nil {
			log.Printf("[LeaderboardHandler] XLSX export of room #%d failed: %v", roomID, err)
		}
	default:
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))
		if err := writeLeaderboardCSV(c.Writer, rows); err != nil {
			log.Printf("[LeaderboardHandler] CSV export of room #%d failed: %v", roomID, err)
		}
	}
}

type exportRow struct {
	Rank  int
	Name  string
	Email string
	XP    int
}

func leaderboardExportRows(board []entity.BoardEntry) []exportRow {
	rows := make([]exportRow, 0, len(board))
	for i, entry := range board {
		row := exportRow{Rank: i + 1, XP: entry.AccumulatedXP}
		if entry.Participant != nil {
			row.Name = sanitizeForExcel(entry.Participant.FullName)
			row.Email = sanitizeForExcel(entry.Participant.Email)
		}
		rows = append(rows, row)
	}
	return rows
}

// writeLeaderboardCSV пишет CSV с BOM для корректного UTF-8 в Excel
func writeLeaderboardCSV(w io.Writer, rows []exportRow) error {
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(leaderboardExportHeaders); err != nil {
		return err
	}
	for _, r := range rows {
		if err := writer.Write([]string{strconv.Itoa(r.Rank), r.Name, r.Email, strconv.Itoa(r.XP)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// writeLeaderboardXLSX пишет Excel-файл через StreamWriter
func writeLeaderboardXLSX(w io.Writer, rows []exportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Leaderboard"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("create stream writer: %w", err)
	}

	headers := make([]interface{}, len(leaderboardExportHeaders))
	for i, h := range leaderboardExportHeaders {
		headers[i] = h
	}
	if err := sw.SetRow("A1", headers); err != nil {
		return err
	}

	for i, r := range rows {
		cell := fmt.Sprintf("A%d", i+2)
		if err := sw.SetRow(cell, []interface{}{r.Rank, r.Name, r.Email, r.XP}); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return err
	}
	return f.Write(w)
}

// sanitizeForExcel экранирует данные для защиты от formula injection в Excel/CSV
func sanitizeForExcel(s string) string {
	if len(s) == 0 {
		return s
	}
	// Символы, начинающие формулу в Excel/LibreOffice: = + - @ \t \r
	if s[0] == '=' || s[0] == '+' || s[0] == '-' || s[0] == '@' || s[0] == '\t' || s[0] == '\r' {
		return "'" + s
	}
	return s
}
