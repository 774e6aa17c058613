package httpapi

import (
	"net/http"
	"time"

	"vaxtrack/internal/domain"
	"vaxtrack/internal/service"
	"vaxtrack/internal/store"

	"go.uber.org/zap"
)

// ChildrenHandler 儿童登记/剂次/预约/汇总 Handler
type ChildrenHandler struct {
	childService service.ChildService
	edits        store.EditBuffer
	tokens       *TokenManager
	logger       *zap.Logger
}

// NewChildrenHandler 创建 ChildrenHandler
func NewChildrenHandler(childService service.ChildService, edits store.EditBuffer, tokens *TokenManager, logger *zap.Logger) *ChildrenHandler {
	return &ChildrenHandler{
		childService: childService,
		edits:        edits,
		tokens:       tokens,
		logger:       logger,
	}
}

// doseRow 剂次行的请求载荷（日期统一 YYYY-MM-DD 字符串）
type doseRow struct {
	Vaccine     string `json:"vaccine"`
	DateGiven   string `json:"date_given"`
	BatchNumber string `json:"batch_number"`
	PlaceGiven  string `json:"place_given"`
	Remarks     string `json:"remarks"`
	NextVisit   string `json:"next_visit"`
}

// List 机构内全部儿童
func (h *ChildrenHandler) List(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := h.tokens.FacilityFromRequest(w, r)
	if !ok {
		return
	}
	children, err := h.childService.ListChildren(r.Context(), facilityID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(children))
}

// Register 登记新儿童
func (h *ChildrenHandler) Register(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := h.tokens.FacilityFromRequest(w, r)
	if !ok {
		return
	}
	var body struct {
		Name    string `json:"name"`
		DOB     string `json:"dob"`
		Sex     string `json:"sex"`
		Address string `json:"address"`
		Contact string `json:"contact"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	dob, err := parseDate(body.DOB)
	if err != nil || dob == nil {
		writeJSON(w, http.StatusBadRequest, Fail("dob must be a YYYY-MM-DD date"))
		return
	}

	child, err := h.childService.RegisterChild(r.Context(), facilityID, service.RegisterChildRequest{
		Name:    body.Name,
		DOB:     *dob,
		Sex:     body.Sex,
		Address: body.Address,
		Contact: body.Contact,
	}, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(child))
}

// Get 单儿童剂次视图（含未保存编辑覆盖层）
func (h *ChildrenHandler) Get(w http.ResponseWriter, r *http.Request, childID int64) {
	facilityID, ok := h.tokens.FacilityFromRequest(w, r)
	if !ok {
		return
	}
	view, err := h.childService.ChildDoses(r.Context(), facilityID, childID, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(view))
}

// Update 更新可编辑字段
func (h *ChildrenHandler) Update(w http.ResponseWriter, r *http.Request, childID int64) {
	facilityID, ok := h.tokens.FacilityFromRequest(w, r)
	if !ok {
		return
	}
	var body struct {
		Name    *string `json:"name"`
		DOB     *string `json:"dob"`
		Sex     *string `json:"sex"`
		Address *string `json:"address"`
		Contact *string `json:"contact"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	req := service.UpdateChildRequest{
		Name:    body.Name,
		Sex:     body.Sex,
		Address: body.Address,
		Contact: body.Contact,
	}
	if body.DOB != nil {
		dob, err := parseDate(*body.DOB)
		if err != nil || dob == nil {
			writeJSON(w, http.StatusBadRequest, Fail("dob must be a YYYY-MM-DD date"))
			return
		}
		req.DOB = dob
	}
	child, err := h.childService.UpdateChild(r.Context(), facilityID, childID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(child))
}

// Delete 删除儿童及其全部剂次
func (h *ChildrenHandler) Delete(w http.ResponseWriter, r *http.Request, childID int64) {
	facilityID, ok := h.tokens.FacilityFromRequest(w, r)
	if !ok {
		return
	}
	if err := h.childService.DeleteChild(r.Context(), facilityID, childID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": true}))
}

// SaveDoses 保存剂次快照（可附带下次随访预约）
func (h *ChildrenHandler) SaveDoses(w http.ResponseWriter, r *http.Request, childID int64) {
	facilityID, ok := h.tokens.FacilityFromRequest(w, r)
	if !ok {
		return
	}
	var body struct {
		Doses   []doseRow `json:"doses"`
		Booking *struct {
			Date     string   `json:"date"`
			Vaccines []string `json:"vaccines"`
		} `json:"booking"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	rows := make([]service.DoseInput, 0, len(body.Doses))
	for _, d := range body.Doses {
		dateGiven, err := parseDate(d.DateGiven)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("date_given must be a YYYY-MM-DD date"))
			return
		}
		nextVisit, err := parseDate(d.NextVisit)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("next_visit must be a YYYY-MM-DD date"))
			return
		}
		rows = append(rows, service.DoseInput{
			Vaccine:     d.Vaccine,
			DateGiven:   dateGiven,
			BatchNumber: d.BatchNumber,
			PlaceGiven:  d.PlaceGiven,
			Remarks:     d.Remarks,
			NextVisit:   nextVisit,
		})
	}

	var booking *service.BookingRequest
	if body.Booking != nil {
		date, err := parseDate(body.Booking.Date)
		if err != nil || date == nil {
			writeJSON(w, http.StatusBadRequest, Fail("booking date must be a YYYY-MM-DD date"))
			return
		}
		booking = &service.BookingRequest{Date: *date, Vaccines: body.Booking.Vaccines}
	}

	saved, err := h.childService.SaveDoses(r.Context(), facilityID, childID, rows, booking, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(saved))
}

// Bookable 可预约疫苗集合
func (h *ChildrenHandler) Bookable(w http.ResponseWriter, r *http.Request, childID int64) {
	facilityID, ok := h.tokens.FacilityFromRequest(w, r)
	if !ok {
		return
	}
	vaccines, err := h.childService.BookableVaccines(r.Context(), facilityID, childID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(vaccines))
}

// TrackEdit 记录一条未保存的接种日期编辑
func (h *ChildrenHandler) TrackEdit(w http.ResponseWriter, r *http.Request, childID int64) {
	facilityID, ok := h.tokens.FacilityFromRequest(w, r)
	if !ok {
		return
	}
	var body struct {
		Vaccine string `json:"vaccine"`
		Date    string `json:"date"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if !domain.IsScheduledVaccine(body.Vaccine) {
		writeJSON(w, http.StatusBadRequest, Fail("unknown vaccine: "+body.Vaccine))
		return
	}
	child, err := h.childService.GetChild(r.Context(), facilityID, childID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.edits.TrackEdit(child.EditKey(), body.Vaccine, body.Date)
	writeJSON(w, http.StatusOK, Ok(map[string]any{"tracked": true}))
}

// ClearEdits 整组丢弃该儿童的未保存编辑
func (h *ChildrenHandler) ClearEdits(w http.ResponseWriter, r *http.Request, childID int64) {
	facilityID, ok := h.tokens.FacilityFromRequest(w, r)
	if !ok {
		return
	}
	child, err := h.childService.GetChild(r.Context(), facilityID, childID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.edits.Clear(child.EditKey())
	writeJSON(w, http.StatusOK, Ok(map[string]any{"cleared": true}))
}

// Summary 汇总视图
func (h *ChildrenHandler) Summary(w http.ResponseWriter, r *http.Request) {
	facilityID, ok := h.tokens.FacilityFromRequest(w, r)
	if !ok {
		return
	}
	summary, err := h.childService.Summary(r.Context(), facilityID, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(summary))
}

// ScheduleList 固定免疫程序表
func (h *ChildrenHandler) ScheduleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(domain.Schedule))
}
