package sqlinline

const QEnsureGenerationJobs = `--sql 036f671c-2296-4833-9548-cc8ab0efad93
create table if not exists generation_jobs (
    id text primary key,
    provider_id text not null,
    model_id text not null,
    clip_type text not null,
    status text not null check (status in ('queued', 'processing', 'completed', 'failed')),
    progress int not null default 0,
    request_json jsonb not null default '{}'::jsonb,
    result_url text,
    result_key text,
    error_kind text,
    error_detail text,
    lease_until timestamptz,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
alter table generation_jobs add column if not exists result_key text;
create index if not exists generation_jobs_active_idx
    on generation_jobs (created_at)
    where status in ('queued', 'processing');
`

const QInsertGenerationJob = `--sql 124355b1-dab2-49f6-b301-bbe83b227500
insert into generation_jobs (id, provider_id, model_id, clip_type, status, progress, request_json, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::text, $5::text, $6::int, $7::jsonb, $8::timestamptz, $8::timestamptz)
on conflict (id) do nothing;
`

const QUpdateGenerationJobStatus = `--sql 100ea6d6-3716-456b-bb84-82d588f2b9f1
update generation_jobs
set status = $2::text,
    progress = $3::int,
    result_url = coalesce($4::text, result_url),
    error_kind = coalesce($5::text, error_kind),
    error_detail = coalesce($6::text, error_detail),
    updated_at = $7::timestamptz,
    lease_until = case when $2::text in ('completed', 'failed') then null else lease_until end
where id = $1::text
  and status not in ('completed', 'failed');
`

const QSelectGenerationJobByID = `--sql 7622e945-9daa-430a-beb4-bd0ba6e7ae34
select id, provider_id, model_id, clip_type, status, progress,
       coalesce(result_url, ''), coalesce(result_key, ''), coalesce(error_kind, ''), coalesce(error_detail, ''),
       created_at, updated_at
from generation_jobs
where id = $1::text;
`

const QClaimActiveGenerationJobs = `--sql 34567447-7e8f-447e-949b-9e60e63d7381
with next_jobs as (
    select id
    from generation_jobs
    where status in ('queued', 'processing')
      and (lease_until is null or lease_until < now())
    order by created_at asc
    for update skip locked
    limit $1::int
),
updated as (
    update generation_jobs
    set lease_until = now() + make_interval(secs => $2::int)
    where id in (select id from next_jobs)
    returning id, provider_id, model_id, clip_type, status, progress,
              coalesce(result_url, ''), coalesce(result_key, ''), coalesce(error_kind, ''), coalesce(error_detail, ''),
              created_at, updated_at
)
select * from updated;
`

const QReleaseGenerationJobLease = `--sql 24279d26-06b8-4d58-a5cd-9cf54c5174d9
update generation_jobs
set lease_until = null
where id = $1::text;
`

const QSetGenerationJobResultKey = `--sql 5c1f0e9a-8b3d-4e72-a6c4-91d2f7b08e35
update generation_jobs
set result_key = $2::text,
    updated_at = $3::timestamptz
where id = $1::text
  and status = 'completed';
`
